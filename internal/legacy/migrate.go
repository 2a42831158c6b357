// Package legacy copies the flat itinerary list kept by older clients under
// the "savedItineraries" key into the local store.
//
// The copy is one-shot in intent but safe to repeat: records are written with
// overwrite semantics, so running it again produces no duplicates. The source
// list is left in place.
package legacy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/kv"
)

// Source reads the legacy key-value table.
type Source interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Sink receives migrated records.
type Sink interface {
	Put(ctx context.Context, rec itinerary.Record) (string, error)
}

// Result summarises one migration run.
type Result struct {
	Migrated int
	Skipped  int
}

// Migrator copies legacy records from Source into Sink.
type Migrator struct {
	src    Source
	dst    Sink
	logger *zap.Logger
}

// NewMigrator returns a migrator. A nil logger discards output.
func NewMigrator(src Source, dst Sink, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{src: src, dst: dst, logger: logger.Named("legacy")}
}

// Migrate writes every decodable element of the legacy list into the sink.
// A missing or empty list is not an error. A write failure stops the run;
// records written before it stay in place.
func (m *Migrator) Migrate(ctx context.Context) (Result, error) {
	var res Result

	raw, ok, err := m.src.Get(ctx, kv.KeyLegacyItineraries)
	if err != nil {
		return res, fmt.Errorf("read legacy itineraries: %w", err)
	}
	if !ok || raw == "" {
		return res, nil
	}

	records, bad, err := itinerary.DecodeList([]byte(raw))
	if err != nil {
		m.logger.Warn("legacy itinerary list is not a JSON array; nothing migrated", zap.Error(err))
		return res, nil
	}
	for _, idx := range bad {
		m.logger.Warn("skipping undecodable legacy itinerary", zap.Int("index", idx))
	}
	res.Skipped = len(bad)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := m.dst.Put(ctx, rec); err != nil {
			return res, fmt.Errorf("migrate itinerary %q: %w", rec.ID, err)
		}
		res.Migrated++
	}

	m.logger.Info("legacy migration finished",
		zap.Int("migrated", res.Migrated),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
