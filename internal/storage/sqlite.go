// Package storage provides the relational persistence layer for the pipeline.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/txnflow/internal/service"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Options configures the database connection.
type Options struct {
	Driver          string
	DSN             string // File path for sqlite3, connection string for postgres
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStorage implements service.Storage on database/sql.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	dsn     string
	now     func() time.Time
}

var _ service.Storage = (*SQLStorage)(nil)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, opts Options) (*SQLStorage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(opts.DSN, "dsn"); err != nil {
		return nil, err
	}

	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if d.name == DriverSQLite {
		dsn, err = sqliteDSN(opts.DSN)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.name == DriverSQLite {
		// SQLite doesn't benefit from multiple connections, and an in-memory
		// database only lives as long as its single connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStorage{
		db:      db,
		dialect: d,
		dsn:     opts.DSN,
		now:     time.Now,
	}, nil
}

// NewSQLiteStorage opens a SQLite database at dbPath (":memory:" for tests).
func NewSQLiteStorage(dbPath string) (*SQLStorage, error) {
	return Open(context.Background(), Options{Driver: DriverSQLite, DSN: dbPath})
}

func sqliteDSN(dbPath string) (string, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return dbPath + "?_journal_mode=WAL&_busy_timeout=5000", nil
}

// Driver returns the name of the database driver in use.
func (s *SQLStorage) Driver() string {
	return s.dialect.name
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStorage) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStorage) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStorage) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// withTx runs fn inside a transaction, committing on success.
func (s *SQLStorage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
