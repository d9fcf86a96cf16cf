package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "journal.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var (
	validStrategies = map[string]bool{"lightweight": true, "heavyweight": true}
	validAlgorithms = map[string]bool{"interval": true, "smooth": true}
	validBackends   = map[string]bool{"memory": true, "sqlite": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "text": true, "console": true}
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateLimits validates every pool in a stable order.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if len(cfg.Pools) == 0 {
		return []FieldError{{
			Field:   "limits.pools",
			Message: "at least one pool is required",
		}}
	}

	names := make([]string, 0, len(cfg.Pools))
	for name := range cfg.Pools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pool := cfg.Pools[name]
		prefix := fmt.Sprintf("limits.pools.%s", name)

		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{Field: "limits.pools", Message: "pool name must not be empty"})
		}
		if pool.Capacity < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".capacity",
				Message: "capacity must be non-negative",
			})
		}
		if pool.TTL <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".ttl",
				Message: "ttl must be positive",
			})
		}
		if pool.Workers < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".workers",
				Message: "workers must be non-negative",
			})
		}
		if !validStrategies[pool.Strategy] {
			errs = append(errs, FieldError{
				Field:   prefix + ".strategy",
				Message: fmt.Sprintf("invalid strategy %q (must be lightweight or heavyweight)", pool.Strategy),
			})
		}

		if pool.RateLimit.Enabled {
			errs = append(errs, validateRateLimit(prefix+".rate_limit", &pool.RateLimit)...)
		}
	}

	return errs
}

// validateRateLimit validates a pool's permit gate.
func validateRateLimit(prefix string, cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	if !validAlgorithms[cfg.Algorithm] {
		errs = append(errs, FieldError{
			Field:   prefix + ".algorithm",
			Message: fmt.Sprintf("invalid algorithm %q (must be interval or smooth)", cfg.Algorithm),
		})
	}
	if cfg.Capacity <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".capacity",
			Message: "capacity must be positive",
		})
	}
	if cfg.Interval <= 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".interval",
			Message: "interval must be positive",
		})
	}
	if cfg.Burst < 0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".burst",
			Message: "burst must be non-negative",
		})
	}
	if !validStrategies[cfg.Strategy] {
		errs = append(errs, FieldError{
			Field:   prefix + ".strategy",
			Message: fmt.Sprintf("invalid strategy %q (must be lightweight or heavyweight)", cfg.Strategy),
		})
	}
	if cfg.HighTraffic {
		if cfg.Algorithm == "smooth" {
			errs = append(errs, FieldError{
				Field:   prefix + ".high_traffic",
				Message: "high traffic mode requires the interval algorithm",
			})
		}
		if cfg.Capacity < 3 {
			errs = append(errs, FieldError{
				Field:   prefix + ".high_traffic",
				Message: "high traffic mode requires capacity of at least 3",
			})
		}
	}

	return errs
}

// validateJournal validates journal configuration.
func validateJournal(cfg *JournalConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "journal.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory or sqlite)", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "journal.sqlite_path",
			Message: "sqlite path is required when backend is sqlite",
		})
	}
	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.write_timeout",
			Message: "write timeout must be non-negative",
		})
	}
	if cfg.Retention < 0 {
		errs = append(errs, FieldError{
			Field:   "journal.retention",
			Message: "retention must be non-negative",
		})
	}
	if cfg.Retention > 0 {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "journal.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text, or console)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.ListenAddress == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.listen_address",
				Message: "listen address is required when metrics are enabled",
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
	}

	return errs
}
