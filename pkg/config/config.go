package config

import "time"

// Config is the root configuration structure for the admission service.
type Config struct {
	// Limits contains the named quota pools and their permit gates.
	Limits LimitsConfig `yaml:"limits"`

	// Journal contains configuration for the slot event audit journal.
	Journal JournalConfig `yaml:"journal"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LimitsConfig contains configuration for quota pools.
type LimitsConfig struct {
	// Pools maps pool names to their configuration. When empty, a single
	// pool named "default" is created.
	Pools map[string]PoolConfig `yaml:"pools"`
}

// PoolConfig configures one quota pool.
type PoolConfig struct {
	// Capacity is the number of slots in the pool. The default matches
	// quota.DefaultCapacity and is effectively unbounded.
	// Default: MaxInt64/2
	Capacity int64 `yaml:"capacity"`

	// TTL is how long a taken slot may stay unconfirmed before it expires.
	// Default: 60ms
	TTL time.Duration `yaml:"ttl"`

	// Workers bounds concurrently running expiration callbacks.
	// 0 means one per CPU.
	// Default: 0
	Workers int `yaml:"workers"`

	// Strategy selects how expiration callbacks are executed.
	// Options: "lightweight", "heavyweight"
	// Default: "lightweight"
	Strategy string `yaml:"strategy"`

	// RateLimit configures the permit gate consulted before every take.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures a pool's permit gate.
type RateLimitConfig struct {
	// Enabled controls whether the pool is rate limited.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Algorithm selects the limiter implementation.
	// Options: "interval" (full refill every interval), "smooth"
	// (continuous refill)
	// Default: "interval"
	Algorithm string `yaml:"algorithm"`

	// Capacity is the number of permits granted per interval.
	// Default: 10
	Capacity int `yaml:"capacity"`

	// Interval is the refill period.
	// Default: 1s
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long a caller waits for a permit. A negative value
	// (e.g. -1ms) means do not wait.
	// Default: 500ms
	Timeout time.Duration `yaml:"timeout"`

	// HighTraffic splits permits into three shards. Requires capacity >= 3
	// and the interval algorithm.
	// Default: false
	HighTraffic bool `yaml:"high_traffic"`

	// Strategy selects how the refill cycle is executed.
	// Options: "lightweight", "heavyweight"
	// Default: "lightweight"
	Strategy string `yaml:"strategy"`

	// Burst is the bucket size for the smooth algorithm. 0 uses capacity.
	// Default: 0
	Burst int `yaml:"burst"`
}

// JournalConfig contains configuration for the slot event journal.
type JournalConfig struct {
	// Enabled controls whether slot events are journaled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file used by the sqlite backend.
	// Default: "data/journal.db"
	SQLitePath string `yaml:"sqlite_path"`

	// AsyncBuffer is the recorder's event buffer size.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds how long the recorder waits for buffer space
	// before dropping an event.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention is how long records are kept. 0 keeps them forever.
	// Default: 24h
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is the cron expression for retention pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the Prometheus endpoint is served.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address of the metrics HTTP server.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
