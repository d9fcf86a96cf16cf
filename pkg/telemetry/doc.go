// Package telemetry groups the observability helpers of the admission
// service.
//
// # Components
//
//   - logging: slog-backed structured logging
//
// Prometheus metrics for quota pools and permit gates live next to the code
// they measure, in pkg/limits.
package telemetry
