// Package mirror is the availability-first facade the CLI and the monitor
// use to read and write itineraries.
//
// Reads prefer the remote service and refresh the local store from it; when
// the remote cannot answer, the local copy is served instead. Writes go to
// the remote first and always land in the local store. A write the remote
// does not accept is recorded in the sync queue for replay, so callers never
// see network errors from Save or Delete. Only local storage failures reach
// the caller.
//
// On a device that has never reached the remote and has an empty store, the
// first offline read runs a one-time bootstrap: the legacy key-value list is
// migrated and, if that yields nothing, a small demo set is seeded.
package mirror
