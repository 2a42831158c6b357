package itinerary

import (
	"strings"
	"time"
)

// Category classifies an activity. Values outside the known set are kept as-is.
type Category string

const (
	CategoryAttraction    Category = "attraction"
	CategoryFood          Category = "food"
	CategoryAccommodation Category = "accommodation"
	CategoryTransport     Category = "transport"
)

var categoryIcons = map[Category]string{
	CategoryAttraction:    "🏞",
	CategoryFood:          "🍜",
	CategoryAccommodation: "🏨",
	CategoryTransport:     "🚌",
}

const defaultCategoryIcon = "📌"

// Known reports whether c is one of the declared categories.
func (c Category) Known() bool {
	_, ok := categoryIcons[c.normalized()]
	return ok
}

// Icon returns the display glyph for c, falling back to a generic pin.
func (c Category) Icon() string {
	if icon, ok := categoryIcons[c.normalized()]; ok {
		return icon
	}
	return defaultCategoryIcon
}

func (c Category) normalized() Category {
	return Category(strings.ToLower(strings.TrimSpace(string(c))))
}

// Activity is a single scheduled entry within a day.
type Activity struct {
	Time        string   `json:"time" yaml:"time"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	Category    Category `json:"type,omitempty" yaml:"type,omitempty"`
	Cost        *float64 `json:"cost,omitempty" yaml:"cost,omitempty"`
	Notes       string   `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// DayPlan groups the activities of one day. Date is a free-text label; in
// practice it holds either an ISO date or something like "Day 1".
type DayPlan struct {
	Date       string     `json:"date" yaml:"date"`
	Activities []Activity `json:"activities" yaml:"activities"`
}

// Record is a saved trip plan, the unit of persistence.
type Record struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Destination string    `json:"destination" yaml:"destination"`
	Duration    int       `json:"duration" yaml:"duration"`
	StartDate   string    `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	Days        []DayPlan `json:"days,omitempty" yaml:"days,omitempty"`
	TotalCost   float64   `json:"totalCost" yaml:"totalCost"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	SavedAt     string    `json:"savedAt,omitempty" yaml:"savedAt,omitempty"`
}

// DurationMismatch reports whether Duration disagrees with the number of day
// plans. Records with no day plans are not considered mismatched; the remote
// service often returns summaries without the schedule.
func (r Record) DurationMismatch() bool {
	return len(r.Days) > 0 && r.Duration != len(r.Days)
}

// Start parses StartDate. ok is false when the field is empty or unparseable.
func (r Record) Start() (time.Time, bool) {
	if strings.TrimSpace(r.StartDate) == "" {
		return time.Time{}, false
	}
	t, err := ParseDate(r.StartDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ActivityCount returns the total number of activities across all days.
func (r Record) ActivityCount() int {
	total := 0
	for _, day := range r.Days {
		total += len(day.Activities)
	}
	return total
}

// Clone returns a deep copy so callers can mutate without aliasing stored data.
func (r Record) Clone() Record {
	dup := r
	if r.Tags != nil {
		dup.Tags = append([]string(nil), r.Tags...)
	}
	if r.Days != nil {
		dup.Days = make([]DayPlan, len(r.Days))
		for i, day := range r.Days {
			dup.Days[i] = DayPlan{Date: day.Date}
			if day.Activities == nil {
				continue
			}
			dup.Days[i].Activities = make([]Activity, len(day.Activities))
			for j, act := range day.Activities {
				if act.Cost != nil {
					cost := *act.Cost
					act.Cost = &cost
				}
				dup.Days[i].Activities[j] = act
			}
		}
	}
	return dup
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate accepts the date shapes seen in stored itineraries: ISO dates,
// RFC3339 timestamps and long-form English dates.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, trimmed)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
