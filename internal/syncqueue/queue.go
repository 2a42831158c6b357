package syncqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/storage"
)

// ErrDrainInProgress is returned by Drain while another drain is running.
var ErrDrainInProgress = errors.New("sync queue drain already in progress")

// Applier replays one operation against the remote service.
type Applier interface {
	Apply(ctx context.Context, op itinerary.Operation) error
}

// Observer receives queue activity, typically a metrics collector.
type Observer interface {
	DrainFinished(applied, failed, abandoned int, elapsed time.Duration)
	QueueDepth(pending, failing, abandoned int)
}

// State is the drain state of a Queue.
type State int

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// DrainResult summarises one drain.
type DrainResult struct {
	Attempted int
	Applied   int
	Failed    int
	Abandoned int
	Remaining int
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending   int
	Failing   int
	Abandoned int
}

// Options tunes a Queue.
type Options struct {
	// MaxAttempts moves an operation to the abandoned list once it has failed
	// this many times. Zero retries forever.
	MaxAttempts int
	// Limiter paces replay. Nil replays as fast as the remote answers.
	Limiter  *rate.Limiter
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

// Queue is the durable FIFO of operations awaiting replay.
type Queue struct {
	db      *sql.DB
	applier Applier
	opts    Options
	logger  *zap.Logger

	mu    sync.Mutex
	state State
}

// New prepares the queue tables on db.
func New(ctx context.Context, db *sql.DB, applier Applier, opts Options) (*Queue, error) {
	if db == nil {
		return nil, fmt.Errorf("sync queue: %w: nil database", storage.ErrUnavailable)
	}
	if applier == nil {
		return nil, errors.New("sync queue: applier required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := storage.EnsureSchema(ctx, db, schemaQueue, schemaAbandoned); err != nil {
		return nil, err
	}
	return &Queue{db: db, applier: applier, opts: opts, logger: logger.Named("syncqueue")}, nil
}

// State reports whether a drain is running.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Enqueue appends op. It fills in ID and EnqueuedAt when they are empty and
// returns the stored operation.
func (q *Queue) Enqueue(ctx context.Context, op itinerary.Operation) (itinerary.Operation, error) {
	if err := op.Validate(); err != nil {
		return itinerary.Operation{}, fmt.Errorf("enqueue: %w", err)
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = q.opts.Now().UTC()
	}
	if err := insertPending(ctx, q.db, op); err != nil {
		return itinerary.Operation{}, err
	}
	q.logger.Info("operation queued", zap.String("op", op.String()), zap.String("op_id", op.ID))
	q.publishDepth(ctx)
	return op, nil
}

// Drain replays pending operations in insertion order. Successful operations
// are removed; failed ones stay in place with their attempt count and last
// error updated. Operations enqueued after the drain started are left for the
// next drain. A concurrent call returns ErrDrainInProgress.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	q.mu.Lock()
	if q.state == StateDraining {
		q.mu.Unlock()
		return DrainResult{}, ErrDrainInProgress
	}
	q.state = StateDraining
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.state = StateIdle
		q.mu.Unlock()
	}()

	started := q.opts.Now()
	var res DrainResult

	snapshot, err := listPending(ctx, q.db)
	if err != nil {
		return res, err
	}
	if len(snapshot) == 0 {
		return res, nil
	}
	q.logger.Info("draining sync queue", zap.Int("pending", len(snapshot)))

	var drainErr error
	for _, entry := range snapshot {
		if q.opts.Limiter != nil {
			if err := q.opts.Limiter.Wait(ctx); err != nil {
				drainErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			drainErr = err
			break
		}

		res.Attempted++
		applyErr := q.applier.Apply(ctx, entry.op)
		if applyErr == nil {
			if err := deletePending(ctx, q.db, entry.seq); err != nil {
				drainErr = err
				break
			}
			res.Applied++
			q.logger.Debug("operation replayed", zap.String("op", entry.op.String()))
			continue
		}

		res.Failed++
		attempts := entry.op.Attempts + 1
		q.logger.Warn("operation replay failed",
			zap.String("op", entry.op.String()),
			zap.Int("attempts", attempts),
			zap.Error(applyErr))

		if q.opts.MaxAttempts > 0 && attempts >= q.opts.MaxAttempts {
			entry.op.Attempts = attempts
			entry.op.LastError = applyErr.Error()
			if err := abandon(ctx, q.db, entry.seq, entry.op, q.opts.Now().UTC()); err != nil {
				drainErr = err
				break
			}
			res.Abandoned++
			q.logger.Error("operation abandoned after retry cap",
				zap.String("op", entry.op.String()),
				zap.Int("max_attempts", q.opts.MaxAttempts))
			continue
		}
		if err := recordFailure(ctx, q.db, entry.seq, applyErr.Error()); err != nil {
			drainErr = err
			break
		}
	}

	if n, err := countPending(ctx, q.db); err == nil {
		res.Remaining = n
	}
	elapsed := q.opts.Now().Sub(started)
	if q.opts.Observer != nil {
		q.opts.Observer.DrainFinished(res.Applied, res.Failed, res.Abandoned, elapsed)
	}
	q.publishDepth(context.WithoutCancel(ctx))

	q.logger.Info("sync queue drained",
		zap.Int("applied", res.Applied),
		zap.Int("failed", res.Failed),
		zap.Int("abandoned", res.Abandoned),
		zap.Int("remaining", res.Remaining))
	return res, drainErr
}

// Pending lists queued operations in replay order.
func (q *Queue) Pending(ctx context.Context) ([]itinerary.Operation, error) {
	entries, err := listPending(ctx, q.db)
	if err != nil {
		return nil, err
	}
	ops := make([]itinerary.Operation, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, e.op)
	}
	return ops, nil
}

// Len returns the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return countPending(ctx, q.db)
}

// Abandoned lists operations that reached the retry cap, oldest first.
func (q *Queue) Abandoned(ctx context.Context) ([]itinerary.Operation, error) {
	return listAbandoned(ctx, q.db)
}

// Requeue moves an abandoned operation back to the tail of the queue with a
// fresh attempt count.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	if err := requeue(ctx, q.db, id); err != nil {
		return err
	}
	q.publishDepth(ctx)
	return nil
}

// Stats counts pending, failing (pending with at least one failed attempt)
// and abandoned operations.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return readStats(ctx, q.db)
}

func (q *Queue) publishDepth(ctx context.Context) {
	if q.opts.Observer == nil {
		return
	}
	st, err := readStats(ctx, q.db)
	if err != nil {
		q.logger.Debug("queue stats unavailable", zap.Error(err))
		return
	}
	q.opts.Observer.QueueDepth(st.Pending, st.Failing, st.Abandoned)
}
