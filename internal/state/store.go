package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/syncqueue"
)

// DrainSummary describes the most recent queue drain.
type DrainSummary struct {
	At     time.Time
	Result syncqueue.DrainResult
	Err    error
}

// Snapshot represents the latest sync status available to the UI.
type Snapshot struct {
	Online              bool
	Probed              bool
	LastProbe           time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive failed probes

	QueueState string
	Stats      syncqueue.Stats
	Pending    []itinerary.Operation
	Abandoned  []itinerary.Operation
	LastDrain  *DrainSummary

	BreakerState string
	LastUpdated  time.Time
}

// IsOffline returns true when the remote has failed the last probe(s).
func (s Snapshot) IsOffline() bool {
	return s.Probed && !s.Online
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// UpdateProbe records a connectivity probe. A nil err marks the remote online.
func (s *Store) UpdateProbe(err error, breakerState string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.snapshot.Probed = true
	s.snapshot.LastProbe = now
	s.snapshot.LastUpdated = now
	s.snapshot.BreakerState = breakerState
	if err != nil {
		s.snapshot.Online = false
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	s.snapshot.Online = true
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// UpdateQueue replaces the queue view.
func (s *Store) UpdateQueue(queueState string, stats syncqueue.Stats, pending, abandoned []itinerary.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.QueueState = queueState
	s.snapshot.Stats = stats
	s.snapshot.Pending = cloneOps(pending)
	s.snapshot.Abandoned = cloneOps(abandoned)
	s.snapshot.LastUpdated = time.Now()
}

// RecordDrain stores the outcome of a drain.
func (s *Store) RecordDrain(res syncqueue.DrainResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastDrain = &DrainSummary{At: time.Now(), Result: res, Err: err}
	s.snapshot.LastUpdated = time.Now()
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Pending = cloneOps(s.snapshot.Pending)
	snap.Abandoned = cloneOps(s.snapshot.Abandoned)
	if s.snapshot.LastDrain != nil {
		d := *s.snapshot.LastDrain
		snap.LastDrain = &d
	}
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneOps(ops []itinerary.Operation) []itinerary.Operation {
	if len(ops) == 0 {
		return nil
	}
	dup := make([]itinerary.Operation, len(ops))
	copy(dup, ops)
	return dup
}
