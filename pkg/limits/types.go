package limits

import (
	"context"
	"errors"
	"log/slog"

	"mercator-hq/admission/pkg/limits/quota"
)

// ErrPoolNotFound is returned for operations on an unknown pool name.
var ErrPoolNotFound = errors.New("limits: pool not found")

// Algorithm names accepted in rate_limit.algorithm.
const (
	// AlgorithmInterval refills a fixed number of permits once per interval.
	AlgorithmInterval = "interval"

	// AlgorithmSmooth refills permits continuously via golang.org/x/time/rate.
	AlgorithmSmooth = "smooth"
)

// Options customizes a Registry beyond what the configuration file covers.
type Options struct {
	// Metrics receives quota and permit gate activity for every pool. Optional.
	Metrics *Metrics

	// Observers receive slot events from every pool. Optional.
	Observers []quota.Observer

	// OnExpire is invoked when a slot in any pool expires. Optional.
	OnExpire func(ctx context.Context, pool, id string)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// TakeResult reports the outcome of Registry.Take.
type TakeResult struct {
	// Pool is the pool the slot was requested from.
	Pool string

	// Serial identifies the slot. Zero when the take was denied.
	Serial int64

	// Granted is true when a slot was taken.
	Granted bool
}

// PoolStatus is a point-in-time view of a pool.
type PoolStatus struct {
	Name      string
	Remaining int64
	Pending   int
	Stopped   bool

	// Gate describes the permit gate, empty when the pool has none.
	Gate string
}
