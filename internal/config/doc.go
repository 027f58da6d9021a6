// Package config handles configuration loading for warden.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WARDEN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/warden/config.yaml
//  3. ~/.config/warden/config.yaml
//
// A .env file in the working directory is loaded by the binary before the
// config is read, so secrets can live there.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	matrix:
//	  access_token: "${WARDEN_MATRIX_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	bot:
//	  shutdown_grace: "10s"
//	  dedupe_ttl: "10m"
//
// # Configuration Sections
//
//	database:
//	  path: "/var/lib/warden/warden.db"
//	  driver: "sqlite"            # or "sqlite3" (cgo)
//
//	matrix:
//	  homeserver: "https://matrix.example.org"
//	  user_id: "@warden:example.org"
//	  access_token: "${WARDEN_MATRIX_TOKEN}"
//	  display_name: "Warden"
//	  admins: ["@root:example.org"]
//	  auto_join: true
//	  encryption:
//	    enabled: false
//	    recovery_key: "${WARDEN_RECOVERY_KEY}"
//	    data_dir: ""              # defaults to the database directory
//
//	bot:
//	  workers: 8
//	  shutdown_grace: "10s"
//	  mention_prefixes: ["@warden", "!w"]
//	  dedupe_ttl: "10m"
//	  dedupe_size: 4096
//
//	logging:
//	  level: "info"               # debug, info, warn, error
//	  format: "text"              # text or json
//	  file: ""                    # append logs here instead of stderr
//
//	metrics:
//	  enabled: false
//	  addr: "127.0.0.1:9464"
//	  path: "/metrics"
//
// When mention_prefixes is empty it is derived from user_id and
// display_name: the full user ID, @localpart and the display name.
package config
