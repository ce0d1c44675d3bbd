// Package config loads runtime configuration for the SignOn CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend auth service
//	-s string   storage backend, sqlite or redis
//	-d string   sqlite DSN of the session store
//	-r string   redis address (host:port)
//	-t int      request timeout (seconds)
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_url": "http://127.0.0.1:8080",
//	  "storage_backend": "sqlite",
//	  "database_dsn": "signon.db",
//	  "redis_addr": "127.0.0.1:6379",
//	  "request_timeout": "12s",
//	  "online_check_interval": "3s"
//	}
//
// Primary API
//
//   - type Config                     — resolved runtime settings
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
