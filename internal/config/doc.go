// Package config loads and validates the chat client's YAML configuration.
//
// # File format
//
//	api:
//	  base_url: "https://api.skillforge.example"
//	  timeout: "15s"
//	channel:
//	  url: "wss://api.skillforge.example/ws"
//	  reconnect_max_attempts: 5
//	  reconnect_backoff: "1s"
//	  reconnect_max_backoff: "30s"
//	  typing_timeout: "2s"
//	cache:
//	  path: "~/.local/share/skillforge/cache.db"
//	logging:
//	  level: "info"
//	  format: "text"
//
// Environment variables in ${VAR_NAME} form are expanded before parsing, so
// secrets can be kept out of the file. Duration fields accept Go duration
// strings. Missing optional fields receive defaults; missing required fields
// fail Validate with a descriptive error.
package config
