package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the relational database. All SQL is written with ? placeholders
// and rebound per driver so the same store runs on postgres in production and
// sqlite in tests.
type Store struct {
	db       *sqlx.DB
	driver   string
	bindType int
}

// NewStore opens a database connection for the given driver and DSN.
func NewStore(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		// An in-memory sqlite database exists per connection; the pool must
		// not open a second one.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, driver: driver, bindType: sqlx.BindType(driver)}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a single database transaction. Every write path of a
// business operation goes through here: fn either commits as a whole or every
// write is rolled back, including failures discovered mid-loop over line
// items. Both the sale and purchase processors use this same helper.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// rebind converts ? placeholders to the driver's bindvar style.
func (s *Store) rebind(query string) string {
	return sqlx.Rebind(s.bindType, query)
}

// forUpdate returns the row-lock clause where the driver supports it. Sqlite
// serializes writers on its own, so the clause is postgres-only.
func (s *Store) forUpdate() string {
	if s.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func now() time.Time {
	return time.Now().UTC()
}
