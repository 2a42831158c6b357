package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/storage"
)

var (
	// ErrStorageUnavailable is returned when the device database cannot be used.
	ErrStorageUnavailable = storage.ErrUnavailable
	// ErrNotFound is returned by GetByID for unknown ids.
	ErrNotFound = errors.New("itinerary not found")
)

const schemaItineraries = `
CREATE TABLE IF NOT EXISTS itineraries (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	start_date TEXT NOT NULL DEFAULT '',
	saved_at TEXT NOT NULL DEFAULT '',
	doc TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_itineraries_title ON itineraries(title);
CREATE INDEX IF NOT EXISTS idx_itineraries_destination ON itineraries(destination);
CREATE INDEX IF NOT EXISTS idx_itineraries_start_date ON itineraries(start_date);
`

const schemaTags = `
CREATE TABLE IF NOT EXISTS itinerary_tags (
	itinerary_id TEXT NOT NULL REFERENCES itineraries(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	tag TEXT NOT NULL,
	PRIMARY KEY (itinerary_id, position)
);
CREATE INDEX IF NOT EXISTS idx_itinerary_tags_tag ON itinerary_tags(tag COLLATE NOCASE);
`

// Store keeps itinerary records on the device, keyed by id.
type Store struct {
	db     *sql.DB
	ids    itinerary.IDGenerator
	logger *zap.Logger
	mu     sync.RWMutex
}

// New prepares the itinerary tables on db. ids mints identifiers for records
// stored without one.
func New(ctx context.Context, db *sql.DB, ids itinerary.IDGenerator, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("local store: %w: nil database", ErrStorageUnavailable)
	}
	if ids == nil {
		ids = &itinerary.TimeIDs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := storage.EnsureSchema(ctx, db, schemaItineraries, schemaTags); err != nil {
		return nil, err
	}
	return &Store{db: db, ids: ids, logger: logger.Named("localstore")}, nil
}

// Put inserts or overwrites rec and returns its id, generating one when empty.
func (s *Store) Put(ctx context.Context, rec itinerary.Record) (string, error) {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = s.ids.Next()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storage.Unavailable("begin put", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsert(ctx, tx, rec); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", storage.Unavailable("commit put", err)
	}
	s.logger.Debug("stored itinerary", zap.String("id", rec.ID))
	return rec.ID, nil
}

// GetAll returns every stored record in no particular order.
func (s *Store) GetAll(ctx context.Context) ([]itinerary.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(ctx, `SELECT id, doc FROM itineraries`)
}

// GetByID returns the record with id or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (itinerary.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM itineraries WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return itinerary.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return itinerary.Record{}, storage.Unavailable("get itinerary", err)
	}
	var rec itinerary.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return itinerary.Record{}, fmt.Errorf("decode itinerary %s: %w", id, err)
	}
	return rec, nil
}

// FindByTag returns records carrying tag (case-insensitive exact match).
func (s *Store) FindByTag(ctx context.Context, tag string) ([]itinerary.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(ctx, `
		SELECT DISTINCT i.id, i.doc FROM itineraries i
		JOIN itinerary_tags t ON t.itinerary_id = i.id
		WHERE t.tag = ? COLLATE NOCASE`, strings.TrimSpace(tag))
}

// DeleteByID removes the record. Deleting an unknown id is not an error.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM itineraries WHERE id = ?`, id); err != nil {
		return storage.Unavailable("delete itinerary", err)
	}
	return nil
}

// ClearAndReplace empties the store and inserts records in one transaction.
// Records without an id get a generated one.
func (s *Store) ClearAndReplace(ctx context.Context, records []itinerary.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("begin replace", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM itinerary_tags`); err != nil {
		return storage.Unavailable("clear tags", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM itineraries`); err != nil {
		return storage.Unavailable("clear itineraries", err)
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			rec.ID = s.ids.Next()
		}
		if err := upsert(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storage.Unavailable("commit replace", err)
	}
	s.logger.Debug("replaced itineraries", zap.Int("count", len(records)))
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM itineraries`).Scan(&n); err != nil {
		return 0, storage.Unavailable("count itineraries", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]itinerary.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storage.Unavailable("query itineraries", err)
	}
	defer rows.Close()

	records := []itinerary.Record{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, storage.Unavailable("scan itinerary", err)
		}
		var rec itinerary.Record
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			s.logger.Warn("skipping undecodable itinerary", zap.String("id", id), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("iterate itineraries", err)
	}
	return records, nil
}

func upsert(ctx context.Context, tx *sql.Tx, rec itinerary.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode itinerary %s: %w", rec.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO itineraries (id, title, destination, start_date, saved_at, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			destination = excluded.destination,
			start_date = excluded.start_date,
			saved_at = excluded.saved_at,
			doc = excluded.doc,
			updated_at = CURRENT_TIMESTAMP`,
		rec.ID, rec.Title, rec.Destination, rec.StartDate, rec.SavedAt, string(doc))
	if err != nil {
		return storage.Unavailable("write itinerary", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM itinerary_tags WHERE itinerary_id = ?`, rec.ID); err != nil {
		return storage.Unavailable("reset tags", err)
	}
	for i, tag := range rec.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO itinerary_tags (itinerary_id, position, tag) VALUES (?, ?, ?)`,
			rec.ID, i, tag); err != nil {
			return storage.Unavailable("write tag", err)
		}
	}
	return nil
}
