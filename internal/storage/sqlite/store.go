// Package sqlite implements the workspace store on an embedded SQLite
// database using the pure-Go ncruces driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/taskmcp/taskmcp/internal/types"
)

// busyTimeoutMillis is how long a connection waits on a write lock before
// reporting contention. Callers treat the resulting error as retriable.
const busyTimeoutMillis = 5000

// Store is a per-workspace SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// DSN builds the connection string for a workspace database. The path is
// percent-escaped so query metacharacters in it cannot corrupt the URI;
// SQLite decodes the escapes when parsing the filename.
// _txlock=immediate acquires the write lock at BEGIN, which serializes
// concurrent writers instead of deadlocking them mid-transaction.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		url.PathEscape(path), busyTimeoutMillis)
}

// New opens (creating if needed) the workspace database at path, applies the
// required pragmas, and brings the schema up to date.
func New(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows concurrent readers during writes.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UnderlyingDB returns the underlying *sql.DB connection.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// inTransaction runs fn inside a single transaction, rolling back on error or
// panic. The DSN's immediate txlock makes BEGIN acquire the write lock early.
func (s *Store) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapSQLError(err, "commit transaction")
	}
	committed = true
	return nil
}

// isUniqueConstraintError checks if err is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// isBusyError checks if err is lock contention surfacing after the busy
// timeout expired.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// mapSQLError converts driver errors into domain error kinds where they have
// defined meaning, wrapping everything else.
func mapSQLError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case isBusyError(err):
		return types.Errorf(types.KindLockContended, "database busy during %s; retry", op)
	case isUniqueConstraintError(err):
		return types.Errorf(types.KindConflict, "unique constraint violated during %s", op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
