package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/tripsync/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(context.Background(), db)
	require.NoError(t, err)
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_JSON(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetJSON(ctx, KeyUserSettings, map[string]any{"theme": "dark"}))

	var got map[string]any
	ok, err := s.GetJSON(ctx, KeyUserSettings, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", got["theme"])

	require.NoError(t, s.Set(ctx, "broken", "{not json"))
	ok, err = s.GetJSON(ctx, "broken", &got)
	assert.True(t, ok)
	assert.Error(t, err)
}
