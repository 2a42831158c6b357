package itinerary

import (
	"strconv"
	"sync"
	"time"
)

// IDGenerator hands out record identifiers.
type IDGenerator interface {
	Next() string
}

const idPrefix = "itinerary-"

// TimeIDs produces "itinerary-<unix millis>" identifiers. Two calls within
// the same millisecond get consecutive values so ids stay unique per process.
type TimeIDs struct {
	Now func() time.Time

	mu   sync.Mutex
	last int64
}

// Next implements IDGenerator.
func (g *TimeIDs) Next() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return idPrefix + strconv.FormatInt(ms, 10)
}

// SequenceIDs produces Prefix1, Prefix2, ... and is meant for tests.
type SequenceIDs struct {
	Prefix string

	mu sync.Mutex
	n  int
}

// Next implements IDGenerator.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	prefix := g.Prefix
	if prefix == "" {
		prefix = idPrefix
	}
	return prefix + strconv.Itoa(g.n)
}
