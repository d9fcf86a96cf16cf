package config

import (
	"math"
	"time"
)

// Default values for configuration fields.
const (
	// Pool defaults
	DefaultPoolName     = "default"
	DefaultPoolCapacity = int64(math.MaxInt64 / 2)
	DefaultPoolTTL      = 60 * time.Millisecond
	DefaultPoolStrategy = "lightweight"

	// Rate limit defaults
	DefaultRateLimitAlgorithm = "interval"
	DefaultRateLimitCapacity  = 10
	DefaultRateLimitInterval  = time.Second
	DefaultRateLimitTimeout   = 500 * time.Millisecond
	DefaultRateLimitStrategy  = "lightweight"

	// Journal defaults
	DefaultJournalEnabled       = false
	DefaultJournalBackend       = "memory"
	DefaultJournalSQLitePath    = "data/journal.db"
	DefaultJournalAsyncBuffer   = 1000
	DefaultJournalWriteTimeout  = 5 * time.Second
	DefaultJournalRetention     = 24 * time.Hour
	DefaultJournalPruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultPrometheusPath       = "/metrics"
)

// ApplyDefaults fills in zero-valued fields of cfg with their defaults.
// Explicitly configured values are left untouched.
func ApplyDefaults(cfg *Config) {
	applyPoolDefaults(cfg)

	// Journal defaults
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = DefaultJournalBackend
	}
	if cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = DefaultJournalSQLitePath
	}
	if cfg.Journal.AsyncBuffer == 0 {
		cfg.Journal.AsyncBuffer = DefaultJournalAsyncBuffer
	}
	if cfg.Journal.WriteTimeout == 0 {
		cfg.Journal.WriteTimeout = DefaultJournalWriteTimeout
	}
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = DefaultJournalRetention
	}
	if cfg.Journal.PruneSchedule == "" {
		cfg.Journal.PruneSchedule = DefaultJournalPruneSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
}

// applyPoolDefaults creates the default pool when none is configured and
// fills in per-pool defaults.
func applyPoolDefaults(cfg *Config) {
	if len(cfg.Limits.Pools) == 0 {
		cfg.Limits.Pools = map[string]PoolConfig{
			DefaultPoolName: {},
		}
	}

	for name, pool := range cfg.Limits.Pools {
		if pool.Capacity == 0 {
			pool.Capacity = DefaultPoolCapacity
		}
		if pool.TTL == 0 {
			pool.TTL = DefaultPoolTTL
		}
		if pool.Strategy == "" {
			pool.Strategy = DefaultPoolStrategy
		}

		rl := &pool.RateLimit
		if rl.Algorithm == "" {
			rl.Algorithm = DefaultRateLimitAlgorithm
		}
		if rl.Capacity == 0 {
			rl.Capacity = DefaultRateLimitCapacity
		}
		if rl.Interval == 0 {
			rl.Interval = DefaultRateLimitInterval
		}
		if rl.Timeout == 0 {
			rl.Timeout = DefaultRateLimitTimeout
		}
		if rl.Strategy == "" {
			rl.Strategy = DefaultRateLimitStrategy
		}

		cfg.Limits.Pools[name] = pool
	}
}
