// Package syncqueue records mutations that could not reach the remote
// service and replays them later.
//
// Operations live in the sync_queue table and replay strictly in insertion
// order. A successful replay removes the row; a failed one stays where it is
// with its attempt count and last error updated, so the relative order of
// survivors never changes. Rows added while a drain runs are not part of
// that drain.
//
// Only one drain runs at a time. Drain moves the queue from StateIdle to
// StateDraining and back; a second caller gets ErrDrainInProgress.
//
// There is no backoff. When Options.MaxAttempts is set, an operation that has
// failed that many times moves to sync_abandoned, where it can be listed and
// requeued. The default keeps retrying forever.
package syncqueue
