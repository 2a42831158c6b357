package itinerary

import (
	"strings"
	"time"
)

// Criteria filters records in memory. Zero values disable a criterion.
type Criteria struct {
	Destination string
	Tags        []string
	From        time.Time
	To          time.Time
}

// IsZero reports whether no criterion is set.
func (c Criteria) IsZero() bool {
	return strings.TrimSpace(c.Destination) == "" && len(c.Tags) == 0 && c.From.IsZero() && c.To.IsZero()
}

// Matches applies every set criterion to r. A criterion is skipped when r
// lacks the field it tests (no destination, no tags, or no parseable start
// date). A To bound without a time of day covers that whole day.
func (c Criteria) Matches(r Record) bool {
	if dest := strings.TrimSpace(c.Destination); dest != "" && strings.TrimSpace(r.Destination) != "" {
		if !strings.Contains(strings.ToLower(r.Destination), strings.ToLower(dest)) {
			return false
		}
	}

	if len(c.Tags) > 0 && len(r.Tags) > 0 && !tagsOverlap(c.Tags, r.Tags) {
		return false
	}

	if start, ok := r.Start(); ok {
		if !c.From.IsZero() && start.Before(c.From) {
			return false
		}
		if to := c.upperBound(); !to.IsZero() && start.After(to) {
			return false
		}
	}
	return true
}

// upperBound is To, moved to the last instant of its day when To is a bare
// date.
func (c Criteria) upperBound() time.Time {
	if c.To.IsZero() {
		return c.To
	}
	h, m, sec := c.To.Clock()
	if h == 0 && m == 0 && sec == 0 && c.To.Nanosecond() == 0 {
		return c.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return c.To
}

// tagsOverlap is true when any wanted tag is a case-insensitive substring of
// any record tag.
// Blank wanted tags are ignored.
func tagsOverlap(wanted, have []string) bool {
	considered := 0
	for _, w := range wanted {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		considered++
		for _, h := range have {
			if strings.Contains(strings.ToLower(h), w) {
				return true
			}
		}
	}
	return considered == 0
}

// Filter returns the records that satisfy c, preserving input order.
func Filter(records []Record, c Criteria) []Record {
	if c.IsZero() {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
