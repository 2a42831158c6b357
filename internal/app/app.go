package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/five82/tripsync/internal/config"
	"github.com/five82/tripsync/internal/connectivity"
	"github.com/five82/tripsync/internal/credentials"
	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/kv"
	"github.com/five82/tripsync/internal/localstore"
	"github.com/five82/tripsync/internal/logging"
	"github.com/five82/tripsync/internal/metrics"
	"github.com/five82/tripsync/internal/mirror"
	"github.com/five82/tripsync/internal/remote"
	"github.com/five82/tripsync/internal/state"
	"github.com/five82/tripsync/internal/storage"
	"github.com/five82/tripsync/internal/syncqueue"
)

// Options adjust Open.
type Options struct {
	// Logger overrides the logger built from the config.
	Logger *zap.Logger
	// IDs overrides the itinerary id generator.
	IDs itinerary.IDGenerator
}

// App holds every long-lived tripsync component.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Credentials *credentials.Store
	Remote      *remote.Client
	Local       *localstore.Store
	KV          *kv.Store
	Queue       *syncqueue.Queue
	Mirror      *mirror.Mirror
	Monitor     *connectivity.Monitor
	State       *state.Store
	Metrics     *metrics.Collector

	db          *sql.DB
	ownsLogger  bool
	drainSignal chan struct{}
}

// Open builds the components described by cfg. The caller must Close the App.
func Open(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	a := &App{
		Config:      cfg,
		Logger:      opts.Logger,
		State:       &state.Store{},
		Metrics:     metrics.NewCollector(),
		drainSignal: make(chan struct{}, 1),
	}
	if a.Logger == nil {
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return nil, err
		}
		a.Logger = logger
		a.ownsLogger = true
	}

	if err := a.open(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context, opts Options) error {
	cfg := a.Config

	creds, err := credentials.Open(cfg.CredentialsPath, a.Logger)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	a.Credentials = creds

	a.Remote, err = remote.NewClient(remote.Options{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.RequestTimeout(),
		UserAgent: cfg.Remote.UserAgent,
		Tokens:    creds,
		Breaker: remote.BreakerSettings{
			FailureRatio: cfg.Breaker.FailureRatio,
			MinRequests:  cfg.Breaker.MinRequests,
			OpenTimeout:  cfg.BreakerOpen(),
		},
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init remote client: %w", err)
	}

	a.db, err = storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}

	a.Local, err = localstore.New(ctx, a.db, opts.IDs, a.Logger)
	if err != nil {
		return err
	}
	a.KV, err = kv.New(ctx, a.db)
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if r := cfg.Sync.ReplayRate; r > 0 {
		limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
	a.Queue, err = syncqueue.New(ctx, a.db, a.Remote, syncqueue.Options{
		MaxAttempts: cfg.Sync.MaxAttempts,
		Limiter:     limiter,
		Observer:    a.Metrics,
		Logger:      a.Logger,
	})
	if err != nil {
		return err
	}

	a.Mirror, err = mirror.New(mirror.Options{
		Local:   a.Local,
		KV:      a.KV,
		Queue:   a.Queue,
		Remote:  a.Remote,
		IDs:     opts.IDs,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	})
	if err != nil {
		return err
	}

	a.Monitor = connectivity.New(a.Remote, connectivity.Options{
		Interval: cfg.ProbeInterval(),
		OnProbe:  a.onProbe,
		OnChange: a.onChange,
		Logger:   a.Logger,
	})
	return nil
}

// Close releases the database and flushes the logger.
func (a *App) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	if a.ownsLogger && a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return err
}
