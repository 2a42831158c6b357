// Package itinerary defines the trip plan documents tripsync persists and the
// sync operations that carry them to the remote service.
//
// # Records
//
// A Record is keyed by ID, which never changes once assigned. Duration is
// expected to match len(Days) but nothing enforces it; DurationMismatch lets
// callers surface the gap instead of rejecting the record.
//
// # Identifiers
//
// IDGenerator is injected wherever ids are minted. TimeIDs reproduces the
// historical "itinerary-<unix millis>" shape; SequenceIDs gives tests
// deterministic values.
//
// # Search
//
// Criteria filters records in memory by destination substring, tag overlap
// and an inclusive start-date range.
package itinerary
