// Package config loads tripsync's TOML configuration.
//
// # Resolution
//
// Load reads, in order:
//
//  1. Built-in defaults (Default)
//  2. The TOML file at the given path, $TRIPSYNC_CONFIG, or
//     ~/.config/tripsync/config.toml; a missing file is not an error
//  3. A .env file in the working directory, if present
//  4. TRIPSYNC_* environment variables
//
// The result is normalised (paths expanded, blanks replaced by defaults) and
// validated with struct tags.
//
// # File layout
//
//	credentials_path = "~/.config/tripsync/credentials.toml"
//
//	[remote]
//	base_url = "https://api.example.com/api"
//	timeout_seconds = 10
//	user_agent = "tripsync/0.1"
//
//	[storage]
//	path = "~/.local/share/tripsync/tripsync.db"
//
//	[sync]
//	probe_interval_seconds = 15
//	replay_rate = 0        # ops per second, 0 = unpaced
//	max_attempts = 0       # 0 = retry forever
//
//	[breaker]
//	failure_ratio = 0.6
//	min_requests = 5
//	open_seconds = 30
//
//	[log]
//	level = "info"         # debug, info, warn, error
//	format = "console"     # console or json
//	file = ""              # empty logs to stderr
//
//	[metrics]
//	addr = ""              # e.g. "127.0.0.1:9464"; empty disables
//
// # Environment overrides
//
// TRIPSYNC_REMOTE_BASE_URL, TRIPSYNC_REMOTE_TIMEOUT_SECONDS,
// TRIPSYNC_REMOTE_USER_AGENT, TRIPSYNC_STORAGE_PATH,
// TRIPSYNC_SYNC_PROBE_INTERVAL_SECONDS, TRIPSYNC_SYNC_REPLAY_RATE,
// TRIPSYNC_SYNC_MAX_ATTEMPTS, TRIPSYNC_LOG_LEVEL, TRIPSYNC_LOG_FORMAT,
// TRIPSYNC_LOG_FILE, TRIPSYNC_METRICS_ADDR and TRIPSYNC_CREDENTIALS_PATH.
package config
