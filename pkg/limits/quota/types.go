package quota

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"mercator-hq/admission/pkg/limits/expiry"
	"mercator-hq/admission/pkg/limits/ratelimit"
)

// DefaultCapacity is the default number of slots. It is finite but
// effectively unbounded for practical durations.
const DefaultCapacity int64 = math.MaxInt64 / 2

// DefaultTTL is how long a taken slot stays pending before it expires.
const DefaultTTL = 60 * time.Millisecond

var (
	// ErrInvalidConfig is returned by New for unusable configurations.
	ErrInvalidConfig = errors.New("quota: invalid config")

	// ErrInterrupted is returned by ForceStop when expiration callbacks were
	// still running at the time it returned.
	ErrInterrupted = errors.New("quota: forced shutdown interrupted running expirations")
)

// Config configures a Manager.
type Config[K comparable] struct {
	// Name labels the manager in logs and events.
	// Default: "default"
	Name string

	// Capacity is the initial number of slots. Zero is valid and denies
	// every Take.
	Capacity int64

	// TTL is how long a taken slot may stay unconfirmed.
	TTL time.Duration

	// Workers bounds concurrently running expiration callbacks when the
	// manager builds its own scheduler.
	// Default: runtime.NumCPU()
	Workers int

	// Strategy selects the scheduler execution backend when the manager
	// builds its own scheduler.
	Strategy expiry.Strategy

	// OnExpire is invoked once with the identifier of every slot that
	// expires. Optional.
	OnExpire func(ctx context.Context, id K)

	// RateLimiter is consulted before every Take. Optional.
	RateLimiter ratelimit.RateLimiter

	// Scheduler overrides the expiration scheduler. The manager takes
	// ownership and shuts it down on Stop.
	Scheduler expiry.Scheduler

	// Observers receive slot events. Optional.
	Observers []Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the default capacity and TTL.
func DefaultConfig[K comparable]() Config[K] {
	return Config[K]{
		Capacity: DefaultCapacity,
		TTL:      DefaultTTL,
		Strategy: expiry.StrategyLightweight,
	}
}

// EventKind identifies a slot transition.
type EventKind string

const (
	EventTaken     EventKind = "taken"
	EventRejected  EventKind = "rejected"
	EventConfirmed EventKind = "confirmed"
	EventCancelled EventKind = "cancelled"
	EventExpired   EventKind = "expired"
)

// Reason explains a rejected Take.
type Reason string

const (
	ReasonStopped         Reason = "stopped"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonExhausted       Reason = "exhausted"
	ReasonDuplicate       Reason = "duplicate"
	ReasonSchedulerClosed Reason = "scheduler_closed"
)

// Event describes one slot transition.
type Event struct {
	// Pool is the manager name.
	Pool string

	// Key is the identifier formatted with fmt.Sprint.
	Key string

	Kind EventKind

	// Reason is set for EventRejected only.
	Reason Reason

	// Serial is the slot serial number (zero for rejections).
	Serial int64

	// Remaining is the counter value after the transition.
	Remaining int64

	// Held is how long the slot was pending before it was resolved.
	Held time.Duration

	At time.Time
}

// Observer receives slot events. Observe is called synchronously on the
// goroutine performing the transition and should return quickly.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev Event) { f(ev) }
