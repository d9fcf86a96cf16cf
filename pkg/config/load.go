package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of every environment variable override.
const envPrefix = "ADMISSION_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention ADMISSION_SECTION_FIELD (e.g., ADMISSION_JOURNAL_BACKEND).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Journal overrides
	if val := os.Getenv(envPrefix + "JOURNAL_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Journal.Enabled = b
		}
	}
	if val := os.Getenv(envPrefix + "JOURNAL_BACKEND"); val != "" {
		cfg.Journal.Backend = val
	}
	if val := os.Getenv(envPrefix + "JOURNAL_SQLITE_PATH"); val != "" {
		cfg.Journal.SQLitePath = val
	}
	if val := os.Getenv(envPrefix + "JOURNAL_RETENTION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Journal.Retention = d
		}
	}
	if val := os.Getenv(envPrefix + "JOURNAL_PRUNE_SCHEDULE"); val != "" {
		cfg.Journal.PruneSchedule = val
	}

	// Telemetry overrides
	if val := os.Getenv(envPrefix + "TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv(envPrefix + "TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv(envPrefix + "TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv(envPrefix + "TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
	if val := os.Getenv(envPrefix + "TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}

	for name := range cfg.Limits.Pools {
		applyPoolEnvOverrides(cfg, name)
	}
}

// applyPoolEnvOverrides applies environment variable overrides for a configured
// pool. Pool variables follow the format ADMISSION_POOLS_<NAME>_<FIELD> where
// NAME is the uppercase pool name with dashes replaced by underscores.
func applyPoolEnvOverrides(cfg *Config, name string) {
	pool := cfg.Limits.Pools[name]
	prefix := fmt.Sprintf("%sPOOLS_%s_", envPrefix, strings.ToUpper(strings.ReplaceAll(name, "-", "_")))

	if val := os.Getenv(prefix + "CAPACITY"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			pool.Capacity = i
		}
	}
	if val := os.Getenv(prefix + "TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			pool.TTL = d
		}
	}
	if val := os.Getenv(prefix + "WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			pool.Workers = i
		}
	}
	if val := os.Getenv(prefix + "STRATEGY"); val != "" {
		pool.Strategy = val
	}
	if val := os.Getenv(prefix + "RATE_LIMIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			pool.RateLimit.Enabled = b
		}
	}
	if val := os.Getenv(prefix + "RATE_LIMIT_CAPACITY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			pool.RateLimit.Capacity = i
		}
	}
	if val := os.Getenv(prefix + "RATE_LIMIT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			pool.RateLimit.Interval = d
		}
	}

	cfg.Limits.Pools[name] = pool
}
