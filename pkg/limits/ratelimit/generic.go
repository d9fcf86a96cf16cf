package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/admission/pkg/limits/expiry"
)

// GenericRateLimiter implements RateLimiter with permit counters that a
// background worker refills to capacity on a fixed interval.
//
// In normal mode a single primary counter holds every permit. In high-traffic
// mode the capacity is split into a primary and two secondary shards:
//
//	base       = capacity / 3
//	primary    = base
//	secondary0 = base
//	secondary1 = base + capacity % 3
//
// Acquires in high-traffic mode draw from the secondary shards only; the
// primary bounds how many parked callers are woken after each refill.
//
// # Thread Safety
//
// Permit counters are channel based and lock-free. The parked-waiter set is
// guarded by its own mutex, which the acquire fast path never takes.
type GenericRateLimiter struct {
	config Config

	primary   *permitPool
	secondary [2]*permitPool // nil unless high-traffic

	// refilling is the "refill imminent" flag.
	refilling atomic.Bool

	waitersMu sync.Mutex
	waiters   []chan struct{}

	done       chan struct{}
	workerDone chan struct{}
	stopOnce   sync.Once

	logger *slog.Logger
}

var _ RateLimiter = (*GenericRateLimiter)(nil)

// New validates cfg and starts a limiter with full permit counters. The
// refill worker runs until Stop is called.
func New(cfg Config) (*GenericRateLimiter, error) {
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	l := &GenericRateLimiter{
		config:     cfg,
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
		logger:     slog.Default().With("component", "ratelimit"),
	}

	if cfg.HighTraffic {
		base := cfg.Capacity / 3
		l.primary = newPermitPool(base)
		l.secondary = [2]*permitPool{
			newPermitPool(base),
			newPermitPool(base + cfg.Capacity%3),
		}
	} else {
		l.primary = newPermitPool(cfg.Capacity)
	}

	go l.run()

	l.logger.Debug("rate limiter started",
		"capacity", cfg.Capacity,
		"interval", cfg.Interval,
		"timeout", cfg.Timeout,
		"high_traffic", cfg.HighTraffic,
		"strategy", cfg.Strategy,
	)

	return l, nil
}

func validate(cfg *Config) error {
	if cfg.Strategy == "" {
		cfg.Strategy = expiry.StrategyLightweight
	}
	if _, err := expiry.ParseStrategy(string(cfg.Strategy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, cfg.Capacity)
	}
	if cfg.HighTraffic && cfg.Capacity < 3 {
		return fmt.Errorf("%w: high-traffic mode needs capacity >= 3, got %d", ErrInvalidConfig, cfg.Capacity)
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidConfig, cfg.Interval)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative, got %v", ErrInvalidConfig, cfg.Timeout)
	}
	return nil
}

// TryAcquire implements RateLimiter.
func (l *GenericRateLimiter) TryAcquire(ctx context.Context) bool {
	granted := l.tryAcquire(ctx)
	if l.config.Observer != nil {
		l.config.Observer.PermitDecision(granted)
	}
	return granted
}

func (l *GenericRateLimiter) tryAcquire(ctx context.Context) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	if l.refilling.Load() && !l.park(ctx) {
		return false
	}

	if l.secondary[0] == nil {
		return l.primary.acquire(ctx, l.config.Timeout, l.done)
	}
	return l.secondary[rand.Intn(2)].acquire(ctx, l.config.Timeout, l.done)
}

// park suspends the caller until the next refill wakes it. It returns false
// if ctx ended or the limiter stopped first.
func (l *GenericRateLimiter) park(ctx context.Context) bool {
	wake := make(chan struct{})

	l.waitersMu.Lock()
	if !l.refilling.Load() {
		l.waitersMu.Unlock()
		return true
	}
	l.waiters = append(l.waiters, wake)
	l.waitersMu.Unlock()

	if l.config.Observer != nil {
		l.config.Observer.Parked(1)
		defer l.config.Observer.Parked(-1)
	}

	select {
	case <-wake:
		return true
	case <-ctx.Done():
	case <-l.done:
	}

	l.waitersMu.Lock()
	for i, w := range l.waiters {
		if w == wake {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			break
		}
	}
	l.waitersMu.Unlock()
	return false
}

// AvailableCount returns the permits currently available in each counter.
// The secondary counts are zero in normal mode.
func (l *GenericRateLimiter) AvailableCount() (primary, secondary0, secondary1 int) {
	primary = l.primary.available()
	if l.secondary[0] != nil {
		secondary0 = l.secondary[0].available()
		secondary1 = l.secondary[1].available()
	}
	return primary, secondary0, secondary1
}

// Waiting returns the number of parked callers.
func (l *GenericRateLimiter) Waiting() int {
	l.waitersMu.Lock()
	defer l.waitersMu.Unlock()
	return len(l.waiters)
}

// Config returns the limiter configuration.
func (l *GenericRateLimiter) Config() Config {
	return l.config
}

// Stop terminates the refill worker and releases every parked caller.
// Subsequent TryAcquire calls return false. Calling Stop more than once is a
// no-op.
func (l *GenericRateLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		<-l.workerDone

		l.waitersMu.Lock()
		l.waiters = nil
		l.waitersMu.Unlock()

		l.logger.Debug("rate limiter stopped")
	})
}

// Close stops the limiter. It always returns nil.
func (l *GenericRateLimiter) Close() error {
	l.Stop()
	return nil
}

// run is the refill cycle.
func (l *GenericRateLimiter) run() {
	defer close(l.workerDone)

	if l.config.Strategy == expiry.StrategyHeavyweight {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.refill()
		}
	}
}

// refill raises the refill flag, resets every counter, lowers the flag and
// wakes at most min(primary permits, parked callers) waiters.
func (l *GenericRateLimiter) refill() {
	l.waitersMu.Lock()
	l.refilling.Store(true)
	l.waitersMu.Unlock()

	l.primary.reset()
	if l.secondary[0] != nil {
		l.secondary[0].reset()
		l.secondary[1].reset()
	}

	l.waitersMu.Lock()
	l.refilling.Store(false)
	n := min(l.primary.available(), len(l.waiters))
	for _, w := range l.waiters[:n] {
		close(w)
	}
	l.waiters = append([]chan struct{}(nil), l.waiters[n:]...)
	l.waitersMu.Unlock()

	if l.config.Observer != nil {
		l.config.Observer.Refilled(l.AvailableCount())
	}
}
