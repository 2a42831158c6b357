package itinerary

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeIDs_FormatAndMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	gen := &TimeIDs{Now: func() time.Time { return fixed }}

	first := gen.Next()
	second := gen.Next()

	assert.Equal(t, "itinerary-1700000000000", first)
	assert.Equal(t, "itinerary-1700000000001", second)
}

func TestSequenceIDs(t *testing.T) {
	gen := &SequenceIDs{Prefix: "trip-"}
	assert.Equal(t, "trip-1", gen.Next())
	assert.Equal(t, "trip-2", gen.Next())

	var def SequenceIDs
	assert.Equal(t, "itinerary-1", def.Next())
}

func TestCategory_IconFallsBackForUnknown(t *testing.T) {
	cases := []struct {
		in    Category
		known bool
	}{
		{CategoryFood, true},
		{" Transport ", true},
		{"shopping", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.in), func(t *testing.T) {
			assert.Equal(t, tc.known, tc.in.Known())
			if !tc.known {
				assert.Equal(t, defaultCategoryIcon, tc.in.Icon())
			} else {
				assert.NotEqual(t, defaultCategoryIcon, tc.in.Icon())
			}
		})
	}
}

func TestRecord_DurationMismatch(t *testing.T) {
	rec := Record{Duration: 2}
	assert.False(t, rec.DurationMismatch(), "no days means no schedule to compare")

	rec.Days = []DayPlan{{Date: "Day 1"}}
	assert.True(t, rec.DurationMismatch())

	rec.Days = append(rec.Days, DayPlan{Date: "Day 2"})
	assert.False(t, rec.DurationMismatch())
}

func TestRecord_CloneIsDeep(t *testing.T) {
	cost := 500.0
	rec := Record{
		ID:   "a",
		Tags: []string{"x"},
		Days: []DayPlan{{Date: "d1", Activities: []Activity{{Title: "walk", Cost: &cost}}}},
	}
	dup := rec.Clone()
	require.Empty(t, cmp.Diff(rec, dup))

	dup.Tags[0] = "y"
	dup.Days[0].Activities[0].Title = "run"
	*dup.Days[0].Activities[0].Cost = 1

	assert.Equal(t, "x", rec.Tags[0])
	assert.Equal(t, "walk", rec.Days[0].Activities[0].Title)
	assert.Equal(t, 500.0, *rec.Days[0].Activities[0].Cost)
}

func TestParseDate_Layouts(t *testing.T) {
	for _, in := range []string{"2023-06-15", "2023-06-15T00:00:00Z", "June 15, 2023", "Jun 15, 2023"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, 2023, got.Year())
		assert.Equal(t, time.June, got.Month())
		assert.Equal(t, 15, got.Day())
	}
	_, err := ParseDate("Day 1")
	assert.Error(t, err)
}

func TestCriteria_Matches(t *testing.T) {
	darj := Record{ID: "1", Destination: "Darjeeling", StartDate: "2023-06-15", Tags: []string{"Tea Gardens", "Cultural"}}
	dooars := Record{ID: "2", Destination: "Dooars", StartDate: "2023-09-10", Tags: []string{"Wildlife"}}
	bare := Record{ID: "3", Destination: "Siliguri"}
	evening := Record{ID: "4", StartDate: "2023-06-20T10:00:00Z", Tags: []string{"Food"}}

	day := func(s string) time.Time {
		t.Helper()
		d, err := ParseDate(s)
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		name string
		c    Criteria
		want []string
	}{
		{"zero criteria", Criteria{}, []string{"1", "2", "3", "4"}},
		{"destination substring", Criteria{Destination: "darj"}, []string{"1", "4"}},
		{"tag substring", Criteria{Tags: []string{"tea"}}, []string{"1", "3"}},
		{"any tag", Criteria{Tags: []string{"wild", "nope"}}, []string{"2", "3"}},
		{"blank tags ignored", Criteria{Tags: []string{" "}}, []string{"1", "2", "3", "4"}},
		{"from inclusive", Criteria{From: day("2023-09-10")}, []string{"2", "3"}},
		{"to inclusive", Criteria{To: day("2023-06-15")}, []string{"1", "3"}},
		{"to covers the whole day", Criteria{To: day("2023-06-20")}, []string{"1", "3", "4"}},
		{"to with a time is exact", Criteria{To: day("2023-06-20T09:00:00Z")}, []string{"1", "3"}},
		{"range", Criteria{From: day("2023-01-01"), To: day("2023-12-31")}, []string{"1", "2", "3", "4"}},
		{"combined", Criteria{Destination: "doo", Tags: []string{"tea"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range Filter([]Record{darj, dooars, bare, evening}, tt.c) {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperation_Validate(t *testing.T) {
	rec := Record{ID: "x1", Title: "Trip"}
	create, err := NewRecordOp(OpCreate, rec)
	require.NoError(t, err)
	require.NoError(t, create.Validate())

	decoded, err := create.Record()
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)

	assert.NoError(t, NewDeleteOp("x1").Validate())
	assert.Error(t, NewDeleteOp("").Validate())
	assert.Error(t, Operation{Kind: "upsert", Resource: ResourceItinerary}.Validate())
	assert.Error(t, Operation{Kind: OpUpdate, Resource: "trips"}.Validate())
	assert.NoError(t, Operation{Kind: OpUpdate, Resource: ResourceProfile}.Validate())

	assert.Equal(t, "delete itinerary/x1", NewDeleteOp("x1").String())
}

func TestDefaultSeed_Independent(t *testing.T) {
	a := DefaultSeed()
	a[0].Title = "changed"
	b := DefaultSeed()
	assert.Len(t, b, 4)
	assert.Equal(t, "Darjeeling Tea Gardens Tour", b[0].Title)
}

func TestDecodeNormalisesAlternateShapes(t *testing.T) {
	raw := []byte(`{
		"id": 7,
		"title": "Darjeeling Tea Gardens Tour",
		"destination": "Darjeeling",
		"duration": "3",
		"budget": "₹15,000",
		"interests": ["Tea Gardens", "Cultural"],
		"createdAt": "2023-05-10"
	}`)

	rec, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "7", rec.ID)
	assert.Equal(t, 3, rec.Duration)
	assert.Equal(t, 15000.0, rec.TotalCost)
	assert.Equal(t, []string{"Tea Gardens", "Cultural"}, rec.Tags)
	assert.Equal(t, "2023-05-10", rec.SavedAt)
}

func TestDecodePrefersCanonicalFields(t *testing.T) {
	raw := []byte(`{
		"id": "x1",
		"totalCost": 15000,
		"tags": "Nature, Heritage",
		"preferences": {"interests": ["ignored"], "budget": 20000},
		"savedAt": "2024-01-01T00:00:00Z",
		"createdAt": "2023-01-01"
	}`)

	rec, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, rec.TotalCost)
	assert.Equal(t, []string{"Nature", "Heritage"}, rec.Tags)
	assert.Equal(t, "2024-01-01T00:00:00Z", rec.SavedAt)
}

func TestDecodePreferencesFallback(t *testing.T) {
	rec, err := Decode([]byte(`{"id":"p","preferences":{"interests":["Nature"],"budget":20000}}`))
	require.NoError(t, err)
	assert.Equal(t, 20000.0, rec.TotalCost)
	assert.Equal(t, []string{"Nature"}, rec.Tags)
}

func TestDecodeList(t *testing.T) {
	records, bad, err := DecodeList([]byte(`[{"id":"a"}, 42, {"id":"b"}]`))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, bad)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1].ID)

	_, _, err = DecodeList([]byte(`{"id":"a"}`))
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	assert.Equal(t, 15000.0, ParseAmount("₹15,000"))
	assert.Equal(t, 99.5, ParseAmount("$99.50"))
	assert.Zero(t, ParseAmount("free"))
	assert.Equal(t, 15000.0, ParseAmount("Rs. 15,000"))
	assert.Equal(t, 15000.5, ParseAmount("INR 15,000.50"))
	assert.Equal(t, 1200.0, ParseAmount("1,200 per person."))
}

func TestDecode_BudgetWithCurrencyAbbreviation(t *testing.T) {
	rec, err := Decode([]byte(`{"id":"b1","title":"Trip","budget":"Rs. 15,000"}`))
	require.NoError(t, err)
	assert.Equal(t, 15000.0, rec.TotalCost)
}
