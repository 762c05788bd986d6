package core

// repo.go implements the contact store on top of a database backend.
//
// Email uniqueness is enforced twice. Create and Update first run the same
// predicate the live-validation endpoint uses (ValidateEmail). Two callers
// can both pass that precheck with the same address; the database's UNIQUE
// constraint then rejects the loser, and that violation is reported as the
// same "Email Must Be Unique" field error, so callers never see a difference
// between the two stages.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	db "github.com/JonMunkholm/contacts/internal/database"
	"github.com/JonMunkholm/contacts/internal/metrics"
)

// PageSize is the number of contacts returned by List and Search.
const PageSize = 10

// ContactRepo stores contacts and issues their ids.
type ContactRepo struct {
	db      db.DB
	metrics *metrics.Metrics

	nextID atomic.Int64
}

// NewContactRepo wraps an open backend. The id counter is seeded once, here,
// from the number of persisted contacts; when earlier deletions left the
// highest id at or above that count, the counter starts after it instead.
func NewContactRepo(ctx context.Context, database db.DB, m *metrics.Metrics) (*ContactRepo, error) {
	count, err := database.CountContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed id counter: %w", err)
	}
	maxID, err := database.MaxContactID(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed id counter: %w", err)
	}

	r := &ContactRepo{db: database, metrics: m}
	r.nextID.Store(max(count, maxID+1))
	return r, nil
}

// NextID returns a fresh id. Ids are strictly increasing for the lifetime of
// the process and are not recomputed from storage.
func (r *ContactRepo) NextID() ContactID {
	return ContactID(r.nextID.Add(1) - 1)
}

// Count returns the number of stored contacts.
func (r *ContactRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.db.CountContacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

// List returns one page of contacts ordered by id. Pages are 1-indexed;
// page < 1 is treated as 1 and pages past the end are empty.
func (r *ContactRepo) List(ctx context.Context, page int) ([]Contact, error) {
	rows, err := r.db.ListContacts(ctx, db.ListContactsParams{
		Limit:  PageSize,
		Offset: pageOffset(page),
	})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contactsFromRows(rows), nil
}

// Search returns one page of contacts whose first or last name contains q,
// ignoring case. An empty q matches every contact.
func (r *ContactRepo) Search(ctx context.Context, q string, page int) ([]Contact, error) {
	rows, err := r.db.SearchContacts(ctx, db.SearchContactsParams{
		Query:  q,
		Limit:  PageSize,
		Offset: pageOffset(page),
	})
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return contactsFromRows(rows), nil
}

// All returns every contact ordered by id.
func (r *ContactRepo) All(ctx context.Context) ([]Contact, error) {
	rows, err := r.db.AllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("all contacts: %w", err)
	}
	return contactsFromRows(rows), nil
}

// Find looks up a contact by id.
func (r *ContactRepo) Find(ctx context.Context, id ContactID) (Contact, bool, error) {
	row, err := r.db.GetContact(ctx, int64(id))
	if errors.Is(err, db.ErrNotFound) {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, fmt.Errorf("find contact %s: %w", id, err)
	}
	return contactFromRow(row), true, nil
}

// Create validates and stores a new contact. A non-valid ContactErrors is a
// business failure; a non-nil error is an infrastructure failure.
func (r *ContactRepo) Create(ctx context.Context, c Contact) (ContactErrors, error) {
	return r.save(ctx, "create", c, r.db.InsertContact)
}

// Update validates the contact and overwrites the stored contact with the
// same id. Keeping one's own email is not a conflict. Updating an id that
// does not exist changes nothing.
func (r *ContactRepo) Update(ctx context.Context, c Contact) (ContactErrors, error) {
	return r.save(ctx, "update", c, r.db.UpdateContact)
}

func (r *ContactRepo) save(ctx context.Context, op string, c Contact, write func(context.Context, db.Contact) error) (ContactErrors, error) {
	if errs := c.Validate(); !errs.Valid() {
		r.metrics.ObserveOperation(op, metrics.ResultInvalid)
		return errs, nil
	}

	id := c.ID
	msg, err := r.ValidateEmail(ctx, &id, c.Email)
	if err != nil {
		r.metrics.ObserveOperation(op, metrics.ResultError)
		return ContactErrors{}, fmt.Errorf("%s contact: %w", op, err)
	}
	if msg != "" {
		if msg == MsgEmailUnique {
			r.metrics.ObserveConflict(metrics.StagePrecheck)
		}
		r.metrics.ObserveOperation(op, metrics.ResultInvalid)
		return ContactErrors{Email: msg}, nil
	}

	if err := write(ctx, c.row()); err != nil {
		if db.IsUniqueViolation(err, "email") {
			slog.Debug("email taken at commit", "op", op, "contact_id", c.ID)
			r.metrics.ObserveConflict(metrics.StageCommit)
			r.metrics.ObserveOperation(op, metrics.ResultInvalid)
			return ContactErrors{Email: MsgEmailUnique}, nil
		}
		r.metrics.ObserveOperation(op, metrics.ResultError)
		return ContactErrors{}, fmt.Errorf("%s contact: %w", op, err)
	}

	r.metrics.ObserveOperation(op, metrics.ResultOK)
	return ContactErrors{}, nil
}

// Delete removes a contact. Deleting an unknown id is not an error.
func (r *ContactRepo) Delete(ctx context.Context, id ContactID) error {
	if err := r.db.DeleteContact(ctx, int64(id)); err != nil {
		r.metrics.ObserveOperation("delete", metrics.ResultError)
		return fmt.Errorf("delete contact %s: %w", id, err)
	}
	r.metrics.ObserveOperation("delete", metrics.ResultOK)
	return nil
}

// ValidateEmail is the uniqueness rule shared by live validation and by
// Create/Update. It returns "" when email is well formed and either unused
// or owned by the contact with the given id (id may be nil for a contact
// that has none yet).
func (r *ContactRepo) ValidateEmail(ctx context.Context, id *ContactID, email string) (string, error) {
	if msg := emailSyntaxError(email); msg != "" {
		return msg, nil
	}

	owner, err := r.db.GetContactByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("validate email: %w", err)
	}

	if id != nil && ContactID(owner.ID) == *id {
		return "", nil
	}
	return MsgEmailUnique, nil
}

// pageOffset converts a 1-indexed page into a row offset.
func pageOffset(page int) int64 {
	if page < 1 {
		page = 1
	}
	return int64(page-1) * PageSize
}
