// Package database provides persistence for contacts.
//
// Two backends implement [DB]: SQLite (the default, in-memory unless a file
// path is configured) and PostgreSQL via pgxpool. Both enforce the UNIQUE
// constraint on contacts.email; constraint violations surface as
// [*UniqueViolationError] so callers can tell which column conflicted
// without parsing driver messages.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Driver names accepted by [Open].
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("contact not found")

// ErrUniqueViolation matches any [*UniqueViolationError] via errors.Is.
var ErrUniqueViolation = errors.New("unique constraint violation")

// UniqueViolationError reports a UNIQUE or PRIMARY KEY conflict on a column.
type UniqueViolationError struct {
	Column string // "email" or "id"
	Err    error  // driver error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint violation on contacts.%s: %v", e.Column, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

func (e *UniqueViolationError) Is(target error) bool { return target == ErrUniqueViolation }

// IsUniqueViolation reports whether err is a unique violation on column.
func IsUniqueViolation(err error, column string) bool {
	var uv *UniqueViolationError
	return errors.As(err, &uv) && uv.Column == column
}

// Contact is a row of the contacts table.
type Contact struct {
	ID    int64
	First string
	Last  string
	Phone string
	Email string
}

// ListContactsParams selects one page of contacts ordered by id.
type ListContactsParams struct {
	Limit  int64
	Offset int64
}

// SearchContactsParams selects one page of contacts whose first or last
// name contains Query, case-insensitively.
type SearchContactsParams struct {
	Query  string
	Limit  int64
	Offset int64
}

// Querier is the set of statements run against the contacts table.
// It is satisfied by a backend and by the transaction handed to [DB.InTx].
type Querier interface {
	InsertContact(ctx context.Context, c Contact) error
	UpdateContact(ctx context.Context, c Contact) error
	DeleteContact(ctx context.Context, id int64) error
	GetContact(ctx context.Context, id int64) (Contact, error)
	GetContactByEmail(ctx context.Context, email string) (Contact, error)
	ListContacts(ctx context.Context, arg ListContactsParams) ([]Contact, error)
	SearchContacts(ctx context.Context, arg SearchContactsParams) ([]Contact, error)
	AllContacts(ctx context.Context) ([]Contact, error)
	CountContacts(ctx context.Context) (int64, error)
	// MaxContactID returns -1 when the table is empty.
	MaxContactID(ctx context.Context) (int64, error)
}

// DB is an open backend.
type DB interface {
	Querier

	// InTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Querier) error) error

	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

// Config selects and tunes a backend.
type Config struct {
	Driver   string
	URL      string
	MaxConns int
	MinConns int
}

// Open connects to the configured backend and applies its schema.
func Open(ctx context.Context, cfg Config) (DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "sqlite3", "":
		return OpenSQLite(ctx, cfg.URL)
	case DriverPostgres, "postgresql", "pgx":
		return OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// likePattern builds a LIKE pattern matching q as a literal substring.
// Backslash is the escape character in both backends' statements.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
