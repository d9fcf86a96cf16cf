package ratelimit

import (
	"context"
	"errors"
	"time"

	"mercator-hq/admission/pkg/limits/expiry"
)

// RateLimiter grants or denies a single permit.
type RateLimiter interface {
	// TryAcquire obtains one permit, waiting at most the limiter's timeout or
	// until ctx is done. It returns false when no permit was granted.
	TryAcquire(ctx context.Context) bool
}

// Observer receives permit gate activity. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// PermitDecision is called once per TryAcquire.
	PermitDecision(granted bool)

	// Refilled is called after each refill with the available counts.
	Refilled(primary, secondary0, secondary1 int)

	// Parked is called with +1 when a caller parks and -1 when it resumes.
	Parked(delta int)
}

// ErrInvalidConfig is returned by New for configurations that cannot work.
var ErrInvalidConfig = errors.New("ratelimit: invalid config")

// Default values for Config.
const (
	DefaultCapacity = 10
	DefaultInterval = 1000 * time.Millisecond
	DefaultTimeout  = 500 * time.Millisecond
)

// Config configures a GenericRateLimiter.
type Config struct {
	// Capacity is the number of permits granted per interval.
	// Must be at least 3 in high-traffic mode.
	Capacity int

	// Interval is the refill cadence.
	Interval time.Duration

	// Timeout bounds how long TryAcquire waits for a permit.
	// Zero means do not wait.
	Timeout time.Duration

	// HighTraffic splits the permits into three shards.
	HighTraffic bool

	// Strategy selects how the refill worker runs.
	// Heavyweight pins the worker to an OS thread.
	Strategy expiry.Strategy

	// Observer is notified of permit activity. Optional.
	Observer Observer
}

// DefaultConfig returns a Config with the default capacity, interval and
// timeout.
func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		Interval: DefaultInterval,
		Timeout:  DefaultTimeout,
		Strategy: expiry.StrategyLightweight,
	}
}
