package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/postgres.sql
var postgresSchema string

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres is the PostgreSQL backend.
type Postgres struct {
	*pgQueries
	pool *pgxpool.Pool
}

// OpenPostgres connects a pgx pool to cfg.URL and applies the schema.
func OpenPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool. The schema must already exist.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pgQueries: &pgQueries{db: pool}, pool: pool}
}

// Driver implements DB.
func (p *Postgres) Driver() string { return DriverPostgres }

// Ping implements DB.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close implements DB.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// InTx implements DB.
func (p *Postgres) InTx(ctx context.Context, fn func(q Querier) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&pgQueries{db: tx})
	})
}

type pgQueries struct {
	db DBTX
}

const pgContactColumns = "id, first, last, phone, email"

func (q *pgQueries) InsertContact(ctx context.Context, c Contact) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO contacts (id, first, last, phone, email)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.First, c.Last, c.Phone, c.Email)
	if err != nil {
		return fmt.Errorf("insert contact: %w", pgConstraintError(err))
	}
	return nil
}

func (q *pgQueries) UpdateContact(ctx context.Context, c Contact) error {
	_, err := q.db.Exec(ctx, `
		UPDATE contacts
		SET first = $1, last = $2, phone = $3, email = $4
		WHERE id = $5
	`, c.First, c.Last, c.Phone, c.Email, c.ID)
	if err != nil {
		return fmt.Errorf("update contact: %w", pgConstraintError(err))
	}
	return nil
}

func (q *pgQueries) DeleteContact(ctx context.Context, id int64) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

func (q *pgQueries) GetContact(ctx context.Context, id int64) (Contact, error) {
	row := q.db.QueryRow(ctx, `SELECT `+pgContactColumns+` FROM contacts WHERE id = $1`, id)
	return scanPgContact(row)
}

func (q *pgQueries) GetContactByEmail(ctx context.Context, email string) (Contact, error) {
	row := q.db.QueryRow(ctx, `SELECT `+pgContactColumns+` FROM contacts WHERE email = $1`, email)
	return scanPgContact(row)
}

func (q *pgQueries) ListContacts(ctx context.Context, arg ListContactsParams) ([]Contact, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+pgContactColumns+` FROM contacts
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return collectPgContacts(rows)
}

func (q *pgQueries) SearchContacts(ctx context.Context, arg SearchContactsParams) ([]Contact, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+pgContactColumns+` FROM contacts
		WHERE first ILIKE $1 ESCAPE '\' OR last ILIKE $1 ESCAPE '\'
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, likePattern(arg.Query), arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return collectPgContacts(rows)
}

func (q *pgQueries) AllContacts(ctx context.Context) ([]Contact, error) {
	rows, err := q.db.Query(ctx, `SELECT `+pgContactColumns+` FROM contacts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("all contacts: %w", err)
	}
	return collectPgContacts(rows)
}

func (q *pgQueries) CountContacts(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

func (q *pgQueries) MaxContactID(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), -1) FROM contacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("max contact id: %w", err)
	}
	return n, nil
}

func scanPgContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.First, &c.Last, &c.Phone, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	return c, nil
}

func collectPgContacts(rows pgx.Rows) ([]Contact, error) {
	contacts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Contact])
	if err != nil {
		return nil, fmt.Errorf("collect contacts: %w", err)
	}
	if contacts == nil {
		contacts = []Contact{}
	}
	return contacts, nil
}

// pgConstraintError converts SQLSTATE 23505 into *UniqueViolationError,
// naming the column from the violated constraint.
func pgConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	column := "id"
	if strings.Contains(pgErr.ConstraintName, "email") {
		column = "email"
	}
	return &UniqueViolationError{Column: column, Err: err}
}
