// Package config provides configuration management for the admission service.
//
// This package handles loading, validating, and defaulting configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("admission.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("admission.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention ADMISSION_SECTION_FIELD.
// For example:
//
//   - ADMISSION_JOURNAL_BACKEND overrides journal.backend
//   - ADMISSION_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//   - ADMISSION_POOLS_API_CAPACITY overrides limits.pools.api.capacity
//
// Pool overrides apply only to pools present in the file.
//
// # Validation
//
// Validation errors include field paths and are reported together:
//
//	configuration validation failed with 2 errors:
//	  - limits.pools.api.ttl: ttl must be positive
//	  - limits.pools.api.rate_limit.high_traffic: high traffic mode requires capacity of at least 3
//
// # Watching
//
// Watcher reloads and validates a file each time it is saved:
//
//	w, err := config.NewWatcher("admission.yaml", 0)
//	if err != nil {
//	    return err
//	}
//	err = w.Watch(ctx, func(cfg *config.Config, err error) {
//	    // exactly one of cfg and err is set
//	})
//
// # Example Configuration
//
//	limits:
//	  pools:
//	    api:
//	      capacity: 500
//	      ttl: 2s
//	      workers: 4
//	      rate_limit:
//	        enabled: true
//	        capacity: 100
//	        interval: 1s
//	        timeout: 50ms
//	        high_traffic: true
//
//	journal:
//	  enabled: true
//	  backend: sqlite
//	  sqlite_path: data/journal.db
//	  retention: 72h
//	  prune_schedule: "0 * * * *"
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
package config
