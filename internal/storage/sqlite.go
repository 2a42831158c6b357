// Package storage opens the on-device SQLite database shared by the local
// store, the key-value table and the sync queue.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrUnavailable marks failures of the durable device storage itself.
var ErrUnavailable = errors.New("device storage unavailable")

// MemoryPath opens a private in-memory database; useful in tests.
const MemoryPath = ":memory:"

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("open database: %w: empty path", ErrUnavailable)
	}
	if trimmed != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
			return nil, Unavailable("create database dir", err)
		}
	}

	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, Unavailable("open database", err)
	}
	// One connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, Unavailable("configure database", err)
		}
	}
	return db, nil
}

// EnsureSchema runs idempotent DDL statements inside one transaction.
func EnsureSchema(ctx context.Context, db *sql.DB, statements ...string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Unavailable("begin schema", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Unavailable("apply schema", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Unavailable("commit schema", err)
	}
	return nil
}

// Unavailable wraps err so callers can match it with errors.Is(err, ErrUnavailable).
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
