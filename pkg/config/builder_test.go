package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder holding a valid configuration
// with only the default pool.
func NewTestConfig() *ConfigBuilder {
	var cfg Config
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithPool adds or replaces a pool.
func (b *ConfigBuilder) WithPool(name string, capacity int64, ttl time.Duration) *ConfigBuilder {
	b.cfg.Limits.Pools[name] = PoolConfig{
		Capacity: capacity,
		TTL:      ttl,
		Strategy: DefaultPoolStrategy,
		RateLimit: RateLimitConfig{
			Algorithm: DefaultRateLimitAlgorithm,
			Capacity:  DefaultRateLimitCapacity,
			Interval:  DefaultRateLimitInterval,
			Strategy:  DefaultRateLimitStrategy,
		},
	}
	return b
}

// WithRateLimit enables the permit gate on an existing pool.
func (b *ConfigBuilder) WithRateLimit(pool string, capacity int, interval time.Duration, highTraffic bool) *ConfigBuilder {
	p := b.cfg.Limits.Pools[pool]
	p.RateLimit.Enabled = true
	p.RateLimit.Capacity = capacity
	p.RateLimit.Interval = interval
	p.RateLimit.HighTraffic = highTraffic
	b.cfg.Limits.Pools[pool] = p
	return b
}

// WithJournal enables the journal with the given backend.
func (b *ConfigBuilder) WithJournal(backend string) *ConfigBuilder {
	b.cfg.Journal.Enabled = true
	b.cfg.Journal.Backend = backend
	return b
}

// WithLogLevel sets the logging level.
func (b *ConfigBuilder) WithLogLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}
