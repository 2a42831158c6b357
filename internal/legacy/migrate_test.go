package legacy

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/kv"
	"github.com/five82/tripsync/internal/localstore"
	"github.com/five82/tripsync/internal/storage"
)

type fixture struct {
	kv    *kv.Store
	store *localstore.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	k, err := kv.New(ctx, db)
	require.NoError(t, err)
	s, err := localstore.New(ctx, db, &itinerary.SequenceIDs{}, nil)
	require.NoError(t, err)
	return fixture{kv: k, store: s}
}

func storedIDs(t *testing.T, s *localstore.Store) []string {
	t.Helper()
	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(all))
	for _, r := range all {
		out = append(out, r.ID)
	}
	sort.Strings(out)
	return out
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.kv.Set(ctx, kv.KeyLegacyItineraries,
		`[{"id":"1","title":"Darjeeling","budget":"₹15,000"},{"id":"2","title":"Kalimpong"}]`))

	m := NewMigrator(f.kv, f.store, nil)

	res, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Migrated: 2}, res)

	res, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Migrated)

	assert.Equal(t, []string{"1", "2"}, storedIDs(t, f.store))

	got, err := f.store.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 15000.0, got.TotalCost)

	_, ok, err := f.kv.Get(ctx, kv.KeyLegacyItineraries)
	require.NoError(t, err)
	assert.True(t, ok, "source list is kept")
}

func TestMigrateMissingOrMalformed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := NewMigrator(f.kv, f.store, nil)

	res, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, res)

	require.NoError(t, f.kv.Set(ctx, kv.KeyLegacyItineraries, `not json`))
	res, err = m.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestMigrateSkipsBadElementsAndGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.kv.Set(ctx, kv.KeyLegacyItineraries, `[{"title":"no id"}, "junk"]`))

	res, err := NewMigrator(f.kv, f.store, nil).Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Migrated: 1, Skipped: 1}, res)
	assert.Equal(t, []string{"itinerary-1"}, storedIDs(t, f.store))
}

type failingSink struct{ after int }

func (s *failingSink) Put(_ context.Context, rec itinerary.Record) (string, error) {
	if s.after == 0 {
		return "", errors.New("disk full")
	}
	s.after--
	return rec.ID, nil
}

func TestMigrateStopsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.kv.Set(ctx, kv.KeyLegacyItineraries, `[{"id":"a"},{"id":"b"},{"id":"c"}]`))

	res, err := NewMigrator(f.kv, &failingSink{after: 1}, nil).Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)
	assert.Equal(t, 1, res.Migrated)
}
