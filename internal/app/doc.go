// Package app is the composition root for tripsync.
//
// Open builds every component once from the resolved configuration and hands
// out the shared instances; nothing in tripsync is a package-level singleton.
//
//	Open()
//	 ├─> credentials.Open()   bearer token, reloaded on change
//	 ├─> remote.NewClient()   HTTP client behind a circuit breaker
//	 ├─> storage.Open()       one SQLite database
//	 │    ├─> localstore.New()
//	 │    ├─> kv.New()
//	 │    └─> syncqueue.New() replays through the remote client
//	 ├─> mirror.New()         facade used by the CLI
//	 └─> connectivity.New()   probes the remote
//
// SetupOfflineSync runs the background loop:
//
//	Monitor.Run ──probe──> state.UpdateProbe, metrics
//	     └── came online ──> drainLoop ──> Mirror.Drain ──> state.RecordDrain
//	pollQueue (every 2s) ──> state.UpdateQueue
//
// Watch adds credential reloading and the optional /metrics endpoint.
//
// Errors building components are fatal and returned from Open. Errors in the
// loop (probe failures, drain failures) are logged and recorded in the state
// store; the loop keeps running until its context is cancelled.
package app
