package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/tripsync/internal/connectivity"
	"github.com/five82/tripsync/internal/syncqueue"
)

const (
	queueRefreshInterval = 2 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// SetupOfflineSync probes the remote on the configured cadence and drains the
// sync queue each time it becomes reachable, including at start when it is
// already up. It blocks until ctx is done.
func (a *App) SetupOfflineSync(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.syncTasks(gctx, g)
	return g.Wait()
}

// Watch runs SetupOfflineSync plus credential reloading and, when
// metrics.addr is set, the Prometheus endpoint. It blocks until ctx is done or
// a task fails.
func (a *App) Watch(ctx context.Context) error {
	var ln net.Listener
	if addr := a.Config.Metrics.Addr; addr != "" {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return err
		}
		a.Logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	}

	g, gctx := errgroup.WithContext(ctx)
	a.syncTasks(gctx, g)
	g.Go(func() error { return a.Credentials.Watch(gctx) })
	if ln != nil {
		g.Go(func() error { return a.serveMetrics(gctx, ln) })
	}
	return g.Wait()
}

func (a *App) syncTasks(ctx context.Context, g *errgroup.Group) {
	a.RefreshQueue(ctx)
	g.Go(func() error { return a.Monitor.Run(ctx) })
	g.Go(func() error { return a.drainLoop(ctx) })
	g.Go(func() error { return a.pollQueue(ctx) })
}

// Drain replays the queue now. A drain already running is not an error; the
// zero result is returned.
func (a *App) Drain(ctx context.Context) (syncqueue.DrainResult, error) {
	res, err := a.Mirror.Drain(ctx)
	if errors.Is(err, syncqueue.ErrDrainInProgress) {
		a.Logger.Debug("drain skipped, another is running")
		return syncqueue.DrainResult{}, nil
	}
	a.State.RecordDrain(res, err)
	a.RefreshQueue(ctx)
	if err != nil {
		return res, err
	}
	if res.Attempted > 0 {
		a.Logger.Info("sync queue drained",
			zap.Int("applied", res.Applied),
			zap.Int("failed", res.Failed),
			zap.Int("abandoned", res.Abandoned),
			zap.Int("remaining", res.Remaining))
	}
	return res, nil
}

// RefreshQueue copies the queue contents into the shared state.
func (a *App) RefreshQueue(ctx context.Context) {
	stats, err := a.Queue.Stats(ctx)
	if err != nil {
		a.Logger.Warn("queue stats failed", zap.Error(err))
		return
	}
	pending, err := a.Queue.Pending(ctx)
	if err != nil {
		a.Logger.Warn("queue listing failed", zap.Error(err))
		return
	}
	abandoned, err := a.Queue.Abandoned(ctx)
	if err != nil {
		a.Logger.Warn("abandoned listing failed", zap.Error(err))
		return
	}
	a.State.UpdateQueue(a.Queue.State().String(), stats, pending, abandoned)
}

func (a *App) onProbe(err error) {
	a.State.UpdateProbe(err, a.Remote.BreakerState())
	a.Metrics.SetOnline(err == nil)
}

func (a *App) onChange(_ context.Context, t connectivity.Transition) {
	if !t.CameOnline() {
		return
	}
	select {
	case a.drainSignal <- struct{}{}:
	default:
	}
}

func (a *App) drainLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.drainSignal:
			if _, err := a.Drain(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Warn("drain failed", zap.Error(err))
			}
		}
	}
}

func (a *App) pollQueue(ctx context.Context) error {
	ticker := time.NewTicker(queueRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.RefreshQueue(ctx)
		}
	}
}

func (a *App) serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	}
}

// Requeue moves an abandoned operation back to the pending queue.
func (a *App) Requeue(ctx context.Context, id string) error {
	if err := a.Queue.Requeue(ctx, id); err != nil {
		return err
	}
	a.RefreshQueue(ctx)
	return nil
}
