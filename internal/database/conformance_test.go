package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBackendTests exercises the Querier contract against an empty backend.
// Both the SQLite tests and the PostgreSQL integration tests call it.
func runBackendTests(t *testing.T, open func(t *testing.T) DB) {
	t.Run("insert and get", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		want := Contact{ID: 7, First: "Ada", Last: "Lovelace", Phone: "555", Email: "ada@x.com"}
		require.NoError(t, db.InsertContact(ctx, want))

		got, err := db.GetContact(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		byEmail, err := db.GetContactByEmail(ctx, "ada@x.com")
		require.NoError(t, err)
		assert.Equal(t, want, byEmail)
	})

	t.Run("missing rows return ErrNotFound", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		_, err := db.GetContact(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = db.GetContactByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate email is a unique violation on email", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		require.NoError(t, db.InsertContact(ctx, Contact{ID: 1, Email: "a@x.com"}))
		err := db.InsertContact(ctx, Contact{ID: 2, Email: "a@x.com"})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUniqueViolation)
		assert.True(t, IsUniqueViolation(err, "email"), "error: %v", err)
		assert.False(t, IsUniqueViolation(err, "id"))
	})

	t.Run("duplicate id is a unique violation on id", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		require.NoError(t, db.InsertContact(ctx, Contact{ID: 1, Email: "a@x.com"}))
		err := db.InsertContact(ctx, Contact{ID: 1, Email: "b@x.com"})

		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err, "id"), "error: %v", err)
	})

	t.Run("update to another contact's email is a unique violation", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		require.NoError(t, db.InsertContact(ctx, Contact{ID: 1, Email: "a@x.com"}))
		require.NoError(t, db.InsertContact(ctx, Contact{ID: 2, Email: "b@x.com"}))

		err := db.UpdateContact(ctx, Contact{ID: 2, Email: "a@x.com"})
		assert.True(t, IsUniqueViolation(err, "email"), "error: %v", err)

		// Own email is not a conflict.
		require.NoError(t, db.UpdateContact(ctx, Contact{ID: 2, First: "B", Email: "b@x.com"}))
		got, err := db.GetContact(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "B", got.First)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		require.NoError(t, db.InsertContact(ctx, Contact{ID: 1, Email: "a@x.com"}))
		require.NoError(t, db.DeleteContact(ctx, 1))
		require.NoError(t, db.DeleteContact(ctx, 1))
		require.NoError(t, db.DeleteContact(ctx, 999))

		n, err := db.CountContacts(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("list pages by id", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			require.NoError(t, db.InsertContact(ctx, Contact{ID: int64(4 - i), Email: fmt.Sprintf("c%d@x.com", i)}))
		}

		page, err := db.ListContacts(ctx, ListContactsParams{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, int64(2), page[0].ID)
		assert.Equal(t, int64(3), page[1].ID)

		empty, err := db.ListContacts(ctx, ListContactsParams{Limit: 2, Offset: 10})
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("search is case-insensitive and literal", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		rows := []Contact{
			{ID: 0, First: "Alice", Last: "Smith", Email: "0@x.com"},
			{ID: 1, First: "Bob", Last: "ALISON", Email: "1@x.com"},
			{ID: 2, First: "Carol", Last: "Jones", Email: "2@x.com"},
			{ID: 3, First: "100%", Last: "pure", Email: "3@x.com"},
			{ID: 4, First: "100 x", Last: "pure", Email: "4@x.com"},
		}
		for _, c := range rows {
			require.NoError(t, db.InsertContact(ctx, c))
		}

		got, err := db.SearchContacts(ctx, SearchContactsParams{Query: "ali", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(0), got[0].ID)
		assert.Equal(t, int64(1), got[1].ID)

		got, err = db.SearchContacts(ctx, SearchContactsParams{Query: "100%", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(3), got[0].ID)

		got, err = db.SearchContacts(ctx, SearchContactsParams{Query: "", Limit: 10})
		require.NoError(t, err)
		assert.Len(t, got, len(rows))
	})

	t.Run("count and max id", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		maxID, err := db.MaxContactID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), maxID)

		require.NoError(t, db.InsertContact(ctx, Contact{ID: 3, Email: "a@x.com"}))
		require.NoError(t, db.InsertContact(ctx, Contact{ID: 9, Email: "b@x.com"}))

		n, err := db.CountContacts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		maxID, err = db.MaxContactID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(9), maxID)
	})

	t.Run("InTx commits on success", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		err := db.InTx(ctx, func(q Querier) error {
			for i := 0; i < 3; i++ {
				if err := q.InsertContact(ctx, Contact{ID: int64(i), Email: fmt.Sprintf("t%d@x.com", i)}); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		n, err := db.CountContacts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("InTx rolls back on error", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := db.InTx(ctx, func(q Querier) error {
			if err := q.InsertContact(ctx, Contact{ID: 1, Email: "a@x.com"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		n, err := db.CountContacts(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
