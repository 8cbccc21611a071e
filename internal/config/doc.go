// Package config handles configuration loading for the LinkU chat sync engine.
//
// # Overview
//
// Configuration is loaded from YAML (default) or TOML files with environment
// variable expansion. Unset timings fall back to the engine defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from LINKU_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/linku/chat.yaml
//  3. ~/.config/linku/chat.yaml
//
// # Environment Variable Expansion
//
//	server:
//	  api_url: "${LINKU_API_URL}"
//
// # Configuration Sections
//
// Server endpoints:
//
//	server:
//	  api_url: "https://api.linku.example"
//	  push_url: "wss://api.linku.example/ws/chat"
//	  session_cookie: "session_id"
//
// Sync timings:
//
//	sync:
//	  active_poll_interval: "3s"    # task conversation open
//	  idle_poll_interval: "30s"     # nothing open
//	  reconnect_delay: "3s"
//	  max_reconnect_attempts: 5
//	  dedup_window: "5s"
//	  recount_debounce: "100ms"
//	  bootstrap_timeout: "10s"
//	  near_bottom_threshold: 150    # pixels
//	  history_page_size: 20
//
// Storage:
//
//	storage:
//	  path: "~/.local/share/linku/client.db"
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
package config
