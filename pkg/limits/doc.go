// Package limits provides named quota pools with optional permit gates.
//
// # Overview
//
// A Registry holds one pool per entry in the limits.pools configuration.
// Each pool combines:
//
//   - a quota.Manager: a fixed number of slots that are taken, then confirmed,
//     cancelled or expired after a TTL
//   - an optional permit gate from the ratelimit package, consulted before
//     every take
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - quota: the slot ledger and counter
//   - ratelimit: interval (token bucket) and smooth permit gates
//   - expiry: the delayed-callback scheduler behind slot expiration
//   - journal: an audit trail of slot events (memory and SQLite)
//
// # Usage
//
//	registry, err := limits.NewRegistry(cfg.Limits, limits.Options{
//	    Metrics: limits.NewMetrics(prometheus.NewRegistry()),
//	})
//	if err != nil {
//	    return err
//	}
//	defer registry.Close()
//
//	res, err := registry.Take(ctx, "api", requestID)
//	if err != nil || !res.Granted {
//	    return errBusy
//	}
//	registry.Confirm("api", requestID)
//
// # Metrics
//
// Metrics registers its collectors on a caller-supplied Prometheus registry
// and exposes per-pool hooks via ForPool. Every metric carries a pool label.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. The pool set is fixed at
// construction.
package limits
