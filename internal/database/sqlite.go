package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// Schema version tracking (PRAGMA user_version):
// 1 - contacts table with UNIQUE(email)
const sqliteSchemaVersion = 1

// DefaultSQLiteURL is an in-memory database private to one connection.
const DefaultSQLiteURL = ":memory:"

// sqliteDriverName is go-sqlite3 with a Unicode-aware fold() registered on
// every connection. SQLite's own LIKE only folds ASCII.
const sqliteDriverName = "sqlite3_contacts"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is the SQLite backend.
type SQLite struct {
	*sqliteQueries
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
//
// The pool is limited to a single connection: SQLite has one writer at a
// time, and an in-memory database lives only as long as its connection.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLiteURL
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	return &SQLite{sqliteQueries: &sqliteQueries{db: db}, db: db}, nil
}

// Driver implements DB.
func (s *SQLite) Driver() string { return DriverSQLite }

// Ping implements DB.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements DB.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InTx implements DB.
func (s *SQLite) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&sqliteQueries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqliteQueries struct {
	db sqlExecutor
}

const sqliteContactColumns = "id, first, last, phone, email"

func (q *sqliteQueries) InsertContact(ctx context.Context, c Contact) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO contacts (id, first, last, phone, email)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.First, c.Last, c.Phone, c.Email)
	if err != nil {
		return fmt.Errorf("insert contact: %w", sqliteConstraintError(err))
	}
	return nil
}

func (q *sqliteQueries) UpdateContact(ctx context.Context, c Contact) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE contacts
		SET first = ?, last = ?, phone = ?, email = ?
		WHERE id = ?
	`, c.First, c.Last, c.Phone, c.Email, c.ID)
	if err != nil {
		return fmt.Errorf("update contact: %w", sqliteConstraintError(err))
	}
	return nil
}

func (q *sqliteQueries) DeleteContact(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

func (q *sqliteQueries) GetContact(ctx context.Context, id int64) (Contact, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+sqliteContactColumns+` FROM contacts WHERE id = ?`, id)
	return scanSQLiteContact(row)
}

func (q *sqliteQueries) GetContactByEmail(ctx context.Context, email string) (Contact, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+sqliteContactColumns+` FROM contacts WHERE email = ?`, email)
	return scanSQLiteContact(row)
}

func (q *sqliteQueries) ListContacts(ctx context.Context, arg ListContactsParams) ([]Contact, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+sqliteContactColumns+` FROM contacts
		ORDER BY id
		LIMIT ? OFFSET ?
	`, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return collectSQLiteContacts(rows)
}

// SearchContacts folds both sides with fold() so non-ASCII letters match
// case-insensitively, as ILIKE does on PostgreSQL.
func (q *sqliteQueries) SearchContacts(ctx context.Context, arg SearchContactsParams) ([]Contact, error) {
	pattern := likePattern(arg.Query)
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+sqliteContactColumns+` FROM contacts
		WHERE fold(first) LIKE fold(?) ESCAPE '\' OR fold(last) LIKE fold(?) ESCAPE '\'
		ORDER BY id
		LIMIT ? OFFSET ?
	`, pattern, pattern, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return collectSQLiteContacts(rows)
}

func (q *sqliteQueries) AllContacts(ctx context.Context) ([]Contact, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+sqliteContactColumns+` FROM contacts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("all contacts: %w", err)
	}
	return collectSQLiteContacts(rows)
}

func (q *sqliteQueries) CountContacts(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

func (q *sqliteQueries) MaxContactID(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), -1) FROM contacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("max contact id: %w", err)
	}
	return n, nil
}

func scanSQLiteContact(row *sql.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.First, &c.Last, &c.Phone, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	return c, nil
}

func collectSQLiteContacts(rows *sql.Rows) ([]Contact, error) {
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.First, &c.Last, &c.Phone, &c.Email); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

// sqliteConstraintError converts UNIQUE and PRIMARY KEY failures into
// *UniqueViolationError. SQLite reports them as
// "UNIQUE constraint failed: contacts.<column>".
func sqliteConstraintError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
	default:
		return err
	}

	column := "id"
	msg := sqliteErr.Error()
	if idx := strings.LastIndex(msg, "contacts."); idx >= 0 {
		column = strings.TrimSpace(msg[idx+len("contacts."):])
	}
	return &UniqueViolationError{Column: column, Err: err}
}
