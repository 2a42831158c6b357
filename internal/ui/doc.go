// Package ui is the `tripsync watch` terminal monitor, built on Bubble Tea.
//
// The monitor is a read-mostly view over state.Store. A tick re-reads the
// snapshot once a second; the background sync loop in package app keeps the
// snapshot current. Two views are available:
//
//   - Pending: queued operations in replay order, with attempts and the last
//     replay error
//   - Abandoned: operations that hit the retry cap
//
// The header shows remote reachability, circuit breaker state, queue counts
// and the outcome of the last drain.
//
// Two keys act on the queue: "s" drains now and "r" moves the selected
// abandoned operation back to the pending queue. Both run as tea.Cmds so the
// UI stays responsive while the remote answers.
package ui
