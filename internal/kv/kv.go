// Package kv is the device key-value table: small string values under
// well-known keys (the legacy itinerary list, cached profile and settings,
// one-shot flags).
package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/five82/tripsync/internal/storage"
)

// Well-known keys.
const (
	KeyLegacyItineraries = "savedItineraries"
	KeyUserProfile       = "userProfile"
	KeyUserSettings      = "userSettings"
	KeyBootstrapped      = "itinerariesBootstrapped"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// Store reads and writes key-value pairs.
type Store struct {
	db *sql.DB
}

// New ensures the kv table exists on db.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := storage.EnsureSchema(ctx, db, schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the value under key. ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, storage.Unavailable("read kv "+key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return storage.Unavailable("write kv "+key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return storage.Unavailable("delete kv "+key, err)
	}
	return nil
}

// GetJSON decodes the value under key into dest. ok is false when absent.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return true, fmt.Errorf("decode kv %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode kv %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
