// Package connectivity probes the remote service on a fixed cadence and
// reports offline/online transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = 15 * time.Second

// Pinger checks whether the remote service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the last known reachability of the remote.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Transition is a change of Status.
type Transition struct {
	From Status
	To   Status
	At   time.Time
	Err  error
}

// CameOnline reports whether the remote became reachable, including the
// first successful probe after start.
func (t Transition) CameOnline() bool {
	return t.To == StatusOnline && t.From != StatusOnline
}

// Options configures a Monitor.
type Options struct {
	Interval time.Duration
	// OnProbe runs after every probe with its error (nil when reachable).
	OnProbe func(err error)
	// OnChange runs synchronously on the probe goroutine when Status changes.
	OnChange func(ctx context.Context, t Transition)
	Logger   *zap.Logger
}

// Monitor tracks reachability of the remote service.
type Monitor struct {
	pinger Pinger
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	status Status
}

// New returns a Monitor probing p.
func New(p Pinger, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{pinger: p, opts: opts, logger: logger.Named("connectivity")}
}

// Status returns the last observed status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Probe pings once, updates the status and fires callbacks.
func (m *Monitor) Probe(ctx context.Context) Status {
	err := m.pinger.Ping(ctx)
	if ctx.Err() != nil {
		// Cancellation is not evidence about the remote.
		return m.Status()
	}

	next := StatusOnline
	if err != nil {
		next = StatusOffline
	}

	m.mu.Lock()
	prev := m.status
	m.status = next
	m.mu.Unlock()

	if m.opts.OnProbe != nil {
		m.opts.OnProbe(err)
	}
	if prev != next {
		if next == StatusOffline {
			m.logger.Warn("remote unreachable", zap.Error(err))
		} else {
			m.logger.Info("remote reachable", zap.String("previous", prev.String()))
		}
		if m.opts.OnChange != nil {
			m.opts.OnChange(ctx, Transition{From: prev, To: next, At: time.Now(), Err: err})
		}
	}
	return next
}

// Run probes immediately and then every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
