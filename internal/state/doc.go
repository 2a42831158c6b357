// Package state holds the sync status shared between the background
// connectivity monitor, the sync queue and the terminal monitor.
//
// Writers (the probe loop and drain callbacks) call UpdateProbe,
// UpdateQueue and RecordDrain; readers take a Snapshot, which is a copy and
// safe to keep. A failed probe keeps the previous queue view and only bumps
// ConsecutiveFailures; IsOffline is true once a probe has run and the latest
// one failed.
package state
