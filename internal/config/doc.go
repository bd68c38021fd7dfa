// Package config loads the recall client configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/recall/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// The RECALL_TOKEN environment variable always wins over the token key so the
// credential does not have to live on disk.
//
// # TOML Format
//
//	api_url = "http://localhost:8081"
//	token = "eyJ..."
//	data_dir = "~/.local/share/recall"
//	log_file = "~/.local/share/recall/recall.log"
//	log_level = "info"
//	undo_window_ms = 4000
//	probe_interval_ms = 5000
//	poll_interval_ms = 2000
//	max_replay_attempts = 0   # 0 retries forever
//	hide_queued = false
//
// Every field is optional. Tilde expansion is applied to data_dir and
// log_file. The action queue lives in <data_dir>/recall.db.
//
// # Error Handling
//
// Load returns errors for:
//   - Path expansion failures (e.g., cannot determine home directory)
//   - File read errors (except os.ErrNotExist, which triggers defaults)
//   - TOML syntax errors and negative max_replay_attempts
package config
