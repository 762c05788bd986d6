package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestSQLite opens a fresh file-backed database in a temp dir.
func createTestSQLite(t *testing.T) DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.db")
	db, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_Backend(t *testing.T) {
	runBackendTests(t, createTestSQLite)
}

func TestSQLite_InMemoryByDefault(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, "")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InsertContact(ctx, Contact{ID: 1, Email: "a@x.com"}))
	n, err := db.CountContacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "contacts.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.InsertContact(ctx, Contact{ID: 5, Email: "a@x.com"}))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetContact(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
}

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, Config{Driver: "sqlite", URL: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, DriverSQLite, db.Driver())
	assert.NoError(t, db.Ping(ctx))

	_, err = Open(ctx, Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "%%"},
		{"bob", "%bob%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\`, `%c:\\%`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.in))
		})
	}
}

func TestSQLite_SearchFoldsUnicode(t *testing.T) {
	ctx := context.Background()
	db := createTestSQLite(t)

	require.NoError(t, db.InsertContact(ctx, Contact{ID: 1, First: "Émile", Last: "Zola", Email: "e@x.com"}))
	require.NoError(t, db.InsertContact(ctx, Contact{ID: 2, First: "Bob", Last: "ÖSTBERG", Email: "b@x.com"}))

	tests := []struct {
		query string
		want  []int64
	}{
		{"émile", []int64{1}},
		{"ÉMI", []int64{1}},
		{"östberg", []int64{2}},
		{"zola", []int64{1}},
		{"ß", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := db.SearchContacts(ctx, SearchContactsParams{Query: tt.query, Limit: 10})
			require.NoError(t, err)
			var ids []int64
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
