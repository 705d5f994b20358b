package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a lookup or delete matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
)

// Options configures Open.
type Options struct {
	// Driver is one of DriverSQLite (default), DriverSQLite3 or DriverPostgres.
	Driver string
	// DSN is a file path for the SQLite drivers and a connection string for Postgres.
	DSN string
	// MaxOpenConns caps the pool; zero keeps the database/sql default.
	MaxOpenConns int
}

// DB wraps a sql.DB connection pool and the dialect it speaks.
type DB struct {
	db      *sql.DB
	dialect dialect
}

// NewDB opens (or creates) a SQLite database at path and runs schema migrations.
func NewDB(path string) (*DB, error) {
	return Open(Options{Driver: DriverSQLite, DSN: path})
}

// Open connects using opts and runs schema migrations.
func Open(opts Options) (*DB, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("open db: empty dsn")
	}

	sqlDB, err := sql.Open(d.driver, d.dsn(opts.DSN))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	db := &DB{db: sqlDB, dialect: d}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Driver returns the name of the driver in use.
func (d *DB) Driver() string {
	return d.dialect.driver
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	_, err := d.db.Exec(d.dialect.schema)
	return err
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, d.dialect.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.dialect.rebind(query), args...)
}

// expectOne turns a zero-row result into ErrNotFound.
func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// notFound maps sql.ErrNoRows to ErrNotFound and wraps everything with op.
func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n > 0}
}
