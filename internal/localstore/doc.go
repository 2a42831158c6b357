// Package localstore is the durable on-device copy of itinerary records.
//
// Records are stored as JSON documents in SQLite, keyed by id, with indexed
// title, destination and start_date columns and a multi-entry tag table.
// Put overwrites by id, so replays and migrations are idempotent.
//
// Database failures surface as ErrStorageUnavailable and are meant to reach
// the caller; lookups of unknown ids return ErrNotFound.
package localstore
