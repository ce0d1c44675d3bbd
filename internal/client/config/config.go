package config

import "time"

// Storage backend selectors for the durable session store.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Config holds runtime settings for the SignOn CLI.
//
// Fields:
//   - ServerEndpointURL: base URL of the backend auth service.
//   - StorageBackend: "sqlite" or "redis".
//   - DatabaseDSN: sqlite DSN for the session store (sqlite backend).
//   - RedisAddr: host:port of the redis server (redis backend).
//   - RequestTimeout: per-request deadline for calls to the backend.
//   - OnlineCheckInterval: how often the client probes server reachability.
//
// Units: RequestTimeout and OnlineCheckInterval are time.Durations.
type Config struct {
	ServerEndpointURL   string
	StorageBackend      string
	DatabaseDSN         string
	RedisAddr           string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointURL = "http://127.0.0.1:8080"
	c.StorageBackend = StorageSQLite
	c.DatabaseDSN = "signon.db"
	c.RedisAddr = "127.0.0.1:6379"
	c.RequestTimeout = 12 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
