// Package ratelimit provides the permit gate consulted before a quota slot is
// taken.
//
// # Overview
//
// A RateLimiter grants or denies one permit per TryAcquire call. The call may
// wait up to a bounded timeout for a permit to become available. Two
// implementations are provided:
//
//   - GenericRateLimiter: permit counters fully refilled on a fixed interval
//     by a background worker, with optional sharding and parking.
//   - SmoothLimiter: an adapter over golang.org/x/time/rate for continuous
//     refill.
//
// # Interval Refill
//
// The GenericRateLimiter resets every permit counter to its capacity once per
// interval. Refill is drain-then-fill: permits left unused in one interval do
// not carry over into the next.
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//	    Capacity: 100,
//	    Interval: time.Second,
//	    Timeout:  50 * time.Millisecond,
//	})
//	if err != nil {
//	    return err
//	}
//	defer limiter.Stop()
//
//	if limiter.TryAcquire(ctx) {
//	    // permitted
//	}
//
// # High-Traffic Mode
//
// With HighTraffic enabled the capacity is split into three shards: a primary
// and two secondaries. Each acquire picks one of the two secondary shards at
// random and waits on that shard only. This reduces contention on a single
// counter at the cost of shard-level unfairness: a caller can be denied while
// the other shard still has permits.
//
// # Parking
//
// Just before each refill the limiter raises a "refill imminent" flag.
// Callers arriving while the flag is raised park instead of racing the refill.
// After the refill completes, at most min(primary permits, parked callers)
// waiters are woken. The rest stay parked until a later refill, their context
// ends, or the limiter stops.
//
// # Thread Safety
//
// All limiters are safe for concurrent use.
package ratelimit
