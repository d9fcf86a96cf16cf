// Package quota implements a bounded ledger of time-limited quota slots.
//
// # Overview
//
// A Manager starts with a fixed number of slots. Take claims one for a
// caller-chosen identifier; the caller then either confirms it (the slot is
// consumed for good) or cancels it (the slot returns to the pool). A slot
// that is neither confirmed nor cancelled within the TTL expires: it returns
// to the pool and the configured OnExpire callback runs with its identifier.
//
// Expirations run on an expiry.Scheduler with a bounded number of workers.
// An optional ratelimit.RateLimiter throttles Take before any slot is
// touched.
//
// # Shutdown
//
// Stop rejects further takes, waits for expirations already running, then
// expires every remaining pending slot on the calling goroutine. ForceStop
// does the same without waiting and reports ErrInterrupted when callbacks
// were still running. After either, Take, Confirm and Cancel return false.
//
// # Observability
//
// Every transition, including rejected takes with their Reason, is reported
// to the configured Observers. pkg/limits wires these to Prometheus metrics
// and pkg/limits/journal records them for audit.
package quota
