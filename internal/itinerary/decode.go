package itinerary

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// looseRecord accepts the shapes older clients and the remote service emit:
// a numeric totalCost or a formatted budget string, tags or interests
// (top-level or under preferences), savedAt or createdAt.
type looseRecord struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Destination string          `json:"destination"`
	Duration    json.RawMessage `json:"duration"`
	StartDate   string          `json:"startDate"`
	Days        []DayPlan       `json:"days"`
	TotalCost   json.RawMessage `json:"totalCost"`
	Budget      json.RawMessage `json:"budget"`
	Tags        json.RawMessage `json:"tags"`
	Interests   []string        `json:"interests"`
	Preferences *struct {
		Interests []string        `json:"interests"`
		Budget    json.RawMessage `json:"budget"`
	} `json:"preferences"`
	SavedAt   string `json:"savedAt"`
	CreatedAt string `json:"createdAt"`
}

// Decode parses one itinerary document, normalising alternate field shapes
// into a Record. Unknown fields are ignored.
func Decode(raw []byte) (Record, error) {
	var l looseRecord
	if err := json.Unmarshal(raw, &l); err != nil {
		return Record{}, fmt.Errorf("decode itinerary: %w", err)
	}

	rec := Record{
		ID:          scalarString(l.ID),
		Title:       l.Title,
		Description: l.Description,
		Destination: l.Destination,
		Duration:    int(parseAmount(l.Duration)),
		StartDate:   l.StartDate,
		Days:        l.Days,
		SavedAt:     l.SavedAt,
	}
	if rec.SavedAt == "" {
		rec.SavedAt = l.CreatedAt
	}

	switch {
	case hasValue(l.TotalCost):
		rec.TotalCost = parseAmount(l.TotalCost)
	case hasValue(l.Budget):
		rec.TotalCost = parseAmount(l.Budget)
	case l.Preferences != nil && hasValue(l.Preferences.Budget):
		rec.TotalCost = parseAmount(l.Preferences.Budget)
	}

	rec.Tags = parseTags(l.Tags)
	if len(rec.Tags) == 0 {
		rec.Tags = l.Interests
	}
	if len(rec.Tags) == 0 && l.Preferences != nil {
		rec.Tags = l.Preferences.Interests
	}
	if len(rec.Tags) == 0 {
		rec.Tags = nil
	}
	return rec, nil
}

// DecodeList parses a JSON array of itinerary documents. Elements that fail
// to decode are reported by index and left out of the result.
func DecodeList(raw []byte) ([]Record, []int, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, nil, fmt.Errorf("decode itinerary list: %w", err)
	}
	records := make([]Record, 0, len(elems))
	var bad []int
	for i, e := range elems {
		rec, err := Decode(e)
		if err != nil {
			bad = append(bad, i)
			continue
		}
		records = append(records, rec)
	}
	return records, bad, nil
}

var amountPattern = regexp.MustCompile(`\d[\d,]*(\.\d+)?`)

// ParseAmount extracts the first number from a formatted amount such as
// "₹15,000" or "Rs. 15,000.50". Strings without digits yield 0.
func ParseAmount(s string) float64 {
	match := amountPattern.FindString(s)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

func hasValue(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != `""`
}

func parseAmount(raw json.RawMessage) float64 {
	if !hasValue(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseAmount(s)
	}
	return 0
}

// scalarString accepts ids sent as JSON strings or numbers.
func scalarString(raw json.RawMessage) string {
	if !hasValue(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseTags accepts a string array or a comma-separated string.
func parseTags(raw json.RawMessage) []string {
	if !hasValue(raw) {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil
	}
	var out []string
	for _, part := range strings.Split(joined, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
