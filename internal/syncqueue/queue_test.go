package syncqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeApplier struct {
	mu      sync.Mutex
	fail    map[string]bool
	applied []string
	hook    func(op itinerary.Operation)
}

func (f *fakeApplier) Apply(_ context.Context, op itinerary.Operation) error {
	if f.hook != nil {
		f.hook(op)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[op.ResourceID] {
		return errors.New("remote unreachable")
	}
	f.applied = append(f.applied, op.ResourceID)
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	drains  int
	pending int
	failing int
}

func (o *recordingObserver) DrainFinished(int, int, int, time.Duration) {
	o.mu.Lock()
	o.drains++
	o.mu.Unlock()
}

func (o *recordingObserver) QueueDepth(pending, failing, _ int) {
	o.mu.Lock()
	o.pending, o.failing = pending, failing
	o.mu.Unlock()
}

func newTestQueue(t *testing.T, applier Applier, opts Options) *Queue {
	t.Helper()
	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q, err := New(context.Background(), db, applier, opts)
	require.NoError(t, err)
	return q
}

func enqueueDeletes(t *testing.T, q *Queue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := q.Enqueue(context.Background(), itinerary.NewDeleteOp(id))
		require.NoError(t, err)
	}
}

func pendingIDs(t *testing.T, q *Queue) []string {
	t.Helper()
	ops, err := q.Pending(context.Background())
	require.NoError(t, err)
	out := []string{}
	for _, op := range ops {
		out = append(out, op.ResourceID)
	}
	return out
}

func TestEnqueueFillsIdentity(t *testing.T) {
	fixed := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	q := newTestQueue(t, &fakeApplier{}, Options{Now: func() time.Time { return fixed }})

	rec := itinerary.Record{ID: "x1", Title: "New Trip"}
	op, err := itinerary.NewRecordOp(itinerary.OpCreate, rec)
	require.NoError(t, err)

	stored, err := q.Enqueue(context.Background(), op)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, fixed, stored.EnqueuedAt)

	ops, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, stored.ID, ops[0].ID)
	assert.True(t, fixed.Equal(ops[0].EnqueuedAt))

	got, err := ops[0].Record()
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestEnqueueRejectsInvalid(t *testing.T) {
	q := newTestQueue(t, &fakeApplier{}, Options{})
	_, err := q.Enqueue(context.Background(), itinerary.Operation{Kind: "upsert", Resource: itinerary.ResourceItinerary})
	assert.Error(t, err)
}

func TestDrainKeepsFailuresInOrder(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{fail: map[string]bool{"op2": true}}
	q := newTestQueue(t, applier, Options{})
	enqueueDeletes(t, q, "op1", "op2", "op3")

	res, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Attempted: 3, Applied: 2, Failed: 1, Remaining: 1}, res)
	assert.Equal(t, []string{"op1", "op3"}, applier.applied)
	assert.Equal(t, []string{"op2"}, pendingIDs(t, q))

	ops, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.Equal(t, "remote unreachable", ops[0].LastError)
}

func TestDrainPreservesRelativeOrderOfSurvivors(t *testing.T) {
	applier := &fakeApplier{fail: map[string]bool{"a": true, "c": true}}
	q := newTestQueue(t, applier, Options{})
	enqueueDeletes(t, q, "a", "b", "c", "d")

	_, err := q.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, pendingIDs(t, q))

	applier.mu.Lock()
	applier.fail = nil
	applier.mu.Unlock()

	res, err := q.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Empty(t, pendingIDs(t, q))
}

func TestDrainEmptyQueue(t *testing.T) {
	q := newTestQueue(t, &fakeApplier{}, Options{})
	res, err := q.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Equal(t, StateIdle, q.State())
}

func TestConcurrentDrainIsRejected(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	applier := &fakeApplier{hook: func(itinerary.Operation) {
		once.Do(func() { close(entered) })
		<-release
	}}
	q := newTestQueue(t, applier, Options{})
	enqueueDeletes(t, q, "op1")

	done := make(chan error, 1)
	go func() {
		_, err := q.Drain(ctx)
		done <- err
	}()

	<-entered
	assert.Equal(t, StateDraining, q.State())
	_, err := q.Drain(ctx)
	assert.ErrorIs(t, err, ErrDrainInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, q.State())
	assert.Empty(t, pendingIDs(t, q))
}

func TestOperationsEnqueuedDuringDrainAreNotTouched(t *testing.T) {
	ctx := context.Background()
	var q *Queue
	var once sync.Once
	applier := &fakeApplier{}
	applier.hook = func(itinerary.Operation) {
		once.Do(func() {
			_, err := q.Enqueue(ctx, itinerary.NewDeleteOp("late"))
			require.NoError(t, err)
		})
	}
	q = newTestQueue(t, applier, Options{})
	enqueueDeletes(t, q, "early")

	res, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, []string{"early"}, applier.applied)
	assert.Equal(t, []string{"late"}, pendingIDs(t, q))
}

func TestRetryCapMovesToAbandoned(t *testing.T) {
	ctx := context.Background()
	applier := &fakeApplier{fail: map[string]bool{"bad": true}}
	q := newTestQueue(t, applier, Options{MaxAttempts: 2})
	enqueueDeletes(t, q, "bad", "good")

	res, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Abandoned)

	res, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Abandoned)
	assert.Empty(t, pendingIDs(t, q))

	abandoned, err := q.Abandoned(ctx)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "bad", abandoned[0].ResourceID)
	assert.Equal(t, 2, abandoned[0].Attempts)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Abandoned: 1}, st)

	require.NoError(t, q.Requeue(ctx, abandoned[0].ID))
	assert.Equal(t, []string{"bad"}, pendingIDs(t, q))
	assert.ErrorIs(t, q.Requeue(ctx, abandoned[0].ID), ErrUnknownOperation)
}

func TestStatsAndObserver(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	q := newTestQueue(t, &fakeApplier{fail: map[string]bool{"x": true}}, Options{Observer: obs})
	enqueueDeletes(t, q, "x", "y")

	obs.mu.Lock()
	assert.Equal(t, 2, obs.pending)
	obs.mu.Unlock()

	_, err := q.Drain(ctx)
	require.NoError(t, err)

	st, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Failing: 1}, st)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.drains)
	assert.Equal(t, 1, obs.pending)
	assert.Equal(t, 1, obs.failing)
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	q := newTestQueue(t, &fakeApplier{}, Options{})
	enqueueDeletes(t, q, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := q.Drain(ctx)
	assert.Error(t, err)
	assert.Zero(t, res.Applied)
	assert.Equal(t, []string{"a", "b"}, pendingIDs(t, q))
}
