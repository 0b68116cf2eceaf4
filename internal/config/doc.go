// Package config handles configuration loading for loom.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation, sensible defaults, and logger construction.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  base_url: "${LOOM_BACKEND_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	backend:
//	  timeout: "2m"
//	credential:
//	  login_timeout: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Backend:
//
//	backend:
//	  base_url: "https://chat.example.com/backend-api"
//	  timeout: "2m"
//
// Credential:
//
//	credential:
//	  path: "~/.loom/credential.json"
//	  login_timeout: "5m"
//	  keep_login_visible: false   # debugging aid for the login surface
//
// Local cache:
//
//	cache:
//	  path: "~/.loom/conversations.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	  file: ""        # optional JSON copy of the log stream
//
// # Usage
//
// Load configuration from a file, or take the defaults:
//
//	cfg, err := config.Load("/etc/loom/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := config.Default()
package config
