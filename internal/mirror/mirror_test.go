package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/tripsync/internal/fakeremote"
	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/kv"
	"github.com/five82/tripsync/internal/localstore"
	"github.com/five82/tripsync/internal/remote"
	"github.com/five82/tripsync/internal/storage"
	"github.com/five82/tripsync/internal/syncqueue"
)

type countingRecorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *countingRecorder) Fallback(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[op]++
}

func (r *countingRecorder) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

type harness struct {
	mirror  *Mirror
	fake    *fakeremote.Server
	local   *localstore.Store
	kv      *kv.Store
	queue   *syncqueue.Queue
	metrics *countingRecorder
	closeDB func()
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	fake := fakeremote.New(fakeremote.Options{})
	ts := httptest.NewServer(fake.Handler())
	t.Cleanup(ts.Close)

	client, err := remote.NewClient(remote.Options{
		BaseURL: ts.URL + "/api",
		Timeout: 2 * time.Second,
		Breaker: remote.BreakerSettings{MinRequests: 1000},
	})
	require.NoError(t, err)

	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	local, err := localstore.New(ctx, db, &itinerary.SequenceIDs{Prefix: "local-"}, nil)
	require.NoError(t, err)
	kvStore, err := kv.New(ctx, db)
	require.NoError(t, err)
	queue, err := syncqueue.New(ctx, db, client, syncqueue.Options{})
	require.NoError(t, err)

	rec := &countingRecorder{}
	m, err := New(Options{
		Local:   local,
		KV:      kvStore,
		Queue:   queue,
		Remote:  client,
		IDs:     &itinerary.SequenceIDs{Prefix: "itinerary-"},
		Metrics: rec,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	return &harness{
		mirror:  m,
		fake:    fake,
		local:   local,
		kv:      kvStore,
		queue:   queue,
		metrics: rec,
		closeDB: func() { _ = db.Close() },
	}
}

func recordIDs(records []itinerary.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	sort.Strings(out)
	return out
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestFetchAll_RemoteReplacesLocalAndCachesForOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.local.Put(ctx, itinerary.Record{ID: "stale", Title: "Old"})
	require.NoError(t, err)
	h.fake.Seed(itinerary.Record{ID: "x1", Title: "Hills", Destination: "Darjeeling"})

	records, err := h.mirror.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, recordIDs(records))

	stored, err := h.local.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, recordIDs(stored))

	h.fake.SetDown(true)
	records, err = h.mirror.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, recordIDs(records))
	assert.Equal(t, 1, h.metrics.count("list"))
}

func TestSave_OfflineQueuesCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.SetDown(true)

	saved, err := h.mirror.Save(ctx, itinerary.Record{Title: "New Trip", Destination: "Dooars"})
	require.NoError(t, err)
	assert.Equal(t, "itinerary-1", saved.ID)
	assert.Equal(t, "2024-03-01T09:30:00Z", saved.SavedAt)

	got, err := h.mirror.GetByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Trip", got.Title)

	pending, err := h.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, itinerary.OpCreate, pending[0].Kind)
	assert.Equal(t, saved.ID, pending[0].ResourceID)
	assert.Equal(t, 1, h.metrics.count("save"))
}

func TestDrain_AfterReconnectEmptiesQueue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.SetDown(true)

	saved, err := h.mirror.Save(ctx, itinerary.Record{Title: "New Trip", Destination: "Dooars"})
	require.NoError(t, err)
	before, err := h.local.GetByID(ctx, saved.ID)
	require.NoError(t, err)

	h.fake.SetDown(false)
	res, err := h.mirror.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	after, err := h.local.GetByID(ctx, saved.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("local record changed by drain (-before +after):\n%s", diff)
	}

	remoteCopy, ok := h.fake.Record(saved.ID)
	require.True(t, ok)
	assert.Equal(t, "Dooars", remoteCopy.Destination)
}

func TestSave_OnlineUpdatesRemoteAndLocal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.Seed(itinerary.Record{ID: "x1", Title: "Hills"})

	_, err := h.mirror.Save(ctx, itinerary.Record{ID: "x1", Title: "Hills Revisited"})
	require.NoError(t, err)

	remoteCopy, _ := h.fake.Record("x1")
	assert.Equal(t, "Hills Revisited", remoteCopy.Title)
	local, err := h.local.GetByID(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, "Hills Revisited", local.Title)

	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSave_RejectedWriteIsQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.FailWith(http.StatusServiceUnavailable)

	_, err := h.mirror.Save(ctx, itinerary.Record{ID: "x1", Title: "Hills"})
	require.NoError(t, err)

	pending, err := h.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, itinerary.OpUpdate, pending[0].Kind)
}

func TestDelete_OfflineQueuesAndRemovesLocally(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.local.Put(ctx, itinerary.Record{ID: "x1", Title: "Hills"})
	require.NoError(t, err)
	h.fake.SetDown(true)

	require.NoError(t, h.mirror.Delete(ctx, "x1"))

	_, err = h.local.GetByID(ctx, "x1")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
	pending, err := h.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, itinerary.OpDelete, pending[0].Kind)
	assert.Equal(t, "x1", pending[0].ResourceID)
}

func TestFetchAll_OverlaysPendingWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.Seed(
		itinerary.Record{ID: "keep", Title: "Keep"},
		itinerary.Record{ID: "gone", Title: "Gone"},
		itinerary.Record{ID: "edit", Title: "Before"},
	)

	h.fake.SetDown(true)
	_, err := h.mirror.Save(ctx, itinerary.Record{Title: "Offline Trip"})
	require.NoError(t, err)
	_, err = h.mirror.Save(ctx, itinerary.Record{ID: "edit", Title: "After"})
	require.NoError(t, err)
	require.NoError(t, h.mirror.Delete(ctx, "gone"))
	h.fake.SetDown(false)

	records, err := h.mirror.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit", "itinerary-1", "keep"}, recordIDs(records))
	for _, r := range records {
		if r.ID == "edit" {
			assert.Equal(t, "After", r.Title)
		}
	}

	stored, err := h.local.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, recordIDs(records), recordIDs(stored))
}

func TestFetchAll_OfflineBootstrapMigratesLegacyList(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.SetDown(true)
	require.NoError(t, h.kv.Set(ctx, kv.KeyLegacyItineraries,
		`[{"id":"old-1","title":"Legacy Trip","destination":"Mirik","budget":"₹9,500"}]`))

	records, err := h.mirror.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "old-1", records[0].ID)
	assert.Equal(t, 9500.0, records[0].TotalCost)

	_, done, err := h.kv.Get(ctx, kv.KeyBootstrapped)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestFetchAll_OfflineBootstrapSeedsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.SetDown(true)

	records, err := h.mirror.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, recordIDs(records))

	require.NoError(t, h.local.ClearAndReplace(ctx, nil))
	records, err = h.mirror.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetByID_ReadsThroughAndCaches(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.Seed(itinerary.Record{ID: "r1", Title: "Remote Only"})

	rec, err := h.mirror.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Remote Only", rec.Title)

	h.fake.SetDown(true)
	rec, err = h.mirror.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Remote Only", rec.Title)

	_, err = h.mirror.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchAll_AssignsIDsMatchingLocalStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.Seed(itinerary.Record{Title: "Untitled upstream", Destination: "Mirik"})

	records, err := h.mirror.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "itinerary-1", records[0].ID)

	stored, err := h.local.GetByID(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Untitled upstream", stored.Title)
}

func TestSearch_FiltersFetchAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.Seed(itinerary.DefaultSeed()...)

	records, err := h.mirror.Search(ctx, itinerary.Criteria{Destination: "dooars"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "3", records[0].ID)

	records, err = h.mirror.Search(ctx, itinerary.Criteria{Tags: []string{"tea"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, recordIDs(records))
}

func TestSaveProfile_CachesAndQueuesWhenOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.SetDown(true)

	require.NoError(t, h.mirror.SaveProfile(ctx, json.RawMessage(`{"name":"Asha"}`)))
	cached, ok, err := h.mirror.Profile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"Asha"}`, string(cached))

	pending, err := h.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, itinerary.ResourceProfile, pending[0].Resource)

	h.fake.SetDown(false)
	_, err = h.mirror.Drain(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Asha"}`, string(h.fake.Profile()))
}

func TestSaveSettings_OnlinePushesWithoutQueueing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.mirror.SaveSettings(ctx, json.RawMessage(`{"currency":"INR"}`)))
	assert.JSONEq(t, `{"currency":"INR"}`, string(h.fake.Settings()))
	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Error(t, h.mirror.SaveSettings(ctx, json.RawMessage(`{`)))
}

func TestShare_RequiresRemote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fake.Seed(itinerary.Record{ID: "x1", Title: "Hills"})

	link, err := h.mirror.Share(ctx, "x1", remote.ShareRequest{Public: true})
	require.NoError(t, err)
	assert.Contains(t, link.URL, "x1")

	h.fake.SetDown(true)
	_, err = h.mirror.Share(ctx, "x1", remote.ShareRequest{})
	assert.True(t, remote.IsUnreachable(err))
}

func TestPDF_FallsBackToLocalRender(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.local.Put(ctx, itinerary.Record{ID: "x1", Title: "Hills", Destination: "Darjeeling"})
	require.NoError(t, err)
	h.fake.SetDown(true)

	doc, err := h.mirror.PDF(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(doc[:4]))
	assert.Equal(t, 1, h.metrics.count("pdf"))

	_, err = h.mirror.PDF(ctx, "missing")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestSave_StorageFailurePropagates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.closeDB()

	_, err := h.mirror.Save(ctx, itinerary.Record{Title: "Doomed"})
	assert.ErrorIs(t, err, localstore.ErrStorageUnavailable)
}
