// Package config handles configuration loading for zap-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ZAP_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/zap/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${ZAP_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("250ms", "30s", "5m"):
//
//	sessions:
//	  reconnect_backoff: "1s"
//	  reconnect_backoff_max: "30s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # REST API, websocket feed, health
//
// Database:
//
//	database:
//	  path: "/var/lib/zap/gateway.db"
//
// Authentication (optional; empty secret disables auth):
//
//	auth:
//	  jwt_secret: "${ZAP_JWT_SECRET}"
//
// Driver backend:
//
//	driver:
//	  mode: "sim"
//	  sim:
//	    pairing_delay: "250ms"
//	    ready_delay: "1s"
//	    registered: []            # empty means everyone is registered
//
// Session reconnect policy:
//
//	sessions:
//	  max_reconnect_attempts: 5
//	  reconnect_backoff: "1s"
//	  reconnect_backoff_max: "30s"
//
// Webhook delivery:
//
//	webhooks:
//	  timeout: "10s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
