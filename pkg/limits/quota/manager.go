package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/admission/pkg/limits/expiry"
	"mercator-hq/admission/pkg/limits/ratelimit"
)

// Manager is a bounded pool of quota slots keyed by caller identifiers.
//
// A slot moves Free -> Taken -> {Confirmed | Cancelled | Expired}. The three
// terminal transitions are mutually exclusive: each removes the ledger entry
// with an atomic compare-and-delete, and only the caller that removed it
// touches the counter or the expiration callback.
//
// # Example
//
//	cfg := quota.DefaultConfig[string]()
//	cfg.Capacity = 100
//	cfg.TTL = 5 * time.Second
//	cfg.OnExpire = func(ctx context.Context, id string) {
//	    log.Printf("request %s never confirmed", id)
//	}
//
//	m, err := quota.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	if serial, ok := m.Take(ctx, "req-1"); ok {
//	    // ... do the work, then
//	    m.Confirm("req-1")
//	}
type Manager[K comparable] struct {
	name      string
	ttl       time.Duration
	counter   *counter
	ledger    sync.Map // K -> *entry
	gate      ratelimit.RateLimiter
	scheduler expiry.Scheduler
	onExpire  func(ctx context.Context, id K)
	observers []Observer
	logger    *slog.Logger

	stopped atomic.Bool
}

// entry is one pending slot. Its pointer identity distinguishes successive
// takes of the same identifier.
type entry struct {
	serial  int64
	takenAt time.Time

	mu       sync.Mutex
	handle   expiry.Handle
	released bool
}

// attach records the expiration handle, cancelling it right away if the
// entry was resolved before scheduling finished.
func (e *entry) attach(h expiry.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		h.Cancel()
		return
	}
	e.handle = h
}

// release cancels the pending expiration, if any.
func (e *entry) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
	if e.handle != nil {
		e.handle.Cancel()
	}
}

// New validates cfg and returns a running Manager.
func New[K comparable](cfg Config[K]) (*Manager[K], error) {
	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must not be negative, got %d", ErrInvalidConfig, cfg.Capacity)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %v", ErrInvalidConfig, cfg.TTL)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, cfg.Workers)
	}
	strategy, err := expiry.ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnExpire == nil {
		cfg.OnExpire = func(context.Context, K) {}
	}
	logger := cfg.Logger.With("component", "quota", "pool", cfg.Name)

	if cfg.Scheduler == nil {
		cfg.Scheduler = expiry.NewTimerScheduler(expiry.Config{
			Workers:  cfg.Workers,
			Strategy: strategy,
			Logger:   cfg.Logger,
		})
	}

	m := &Manager[K]{
		name:      cfg.Name,
		ttl:       cfg.TTL,
		counter:   newCounter(cfg.Capacity),
		gate:      cfg.RateLimiter,
		scheduler: cfg.Scheduler,
		onExpire:  cfg.OnExpire,
		observers: cfg.Observers,
		logger:    logger,
	}

	logger.Debug("quota manager started",
		"capacity", cfg.Capacity,
		"ttl", cfg.TTL,
		"rate_limited", cfg.RateLimiter != nil,
	)

	return m, nil
}

// Take claims one slot for id. On success it returns the counter value
// before the decrement as the slot serial. It fails without side effects when
// the manager is stopped, id already holds a pending slot, the rate limiter
// denies the request, or no slots remain.
//
// Take may block for up to the rate limiter's timeout.
func (m *Manager[K]) Take(ctx context.Context, id K) (int64, bool) {
	if m.stopped.Load() {
		m.reject(id, ReasonStopped)
		return 0, false
	}
	if _, pending := m.ledger.Load(id); pending {
		m.reject(id, ReasonDuplicate)
		return 0, false
	}
	if m.gate != nil && !m.gate.TryAcquire(ctx) {
		m.reject(id, ReasonRateLimited)
		return 0, false
	}

	serial, ok := m.counter.take()
	if !ok {
		m.reject(id, ReasonExhausted)
		return 0, false
	}

	e := &entry{serial: serial, takenAt: time.Now()}
	if _, loaded := m.ledger.LoadOrStore(id, e); loaded {
		// Lost a race with a concurrent Take of the same id.
		m.counter.release()
		m.reject(id, ReasonDuplicate)
		return 0, false
	}

	h, err := m.scheduler.Schedule(m.ttl, func(ctx context.Context) {
		m.expire(ctx, id, e)
	})
	if err != nil {
		if m.ledger.CompareAndDelete(id, e) {
			m.counter.release()
		}
		m.reject(id, ReasonSchedulerClosed)
		return 0, false
	}
	e.attach(h)

	m.emit(Event{Kind: EventTaken, Key: m.key(id), Serial: serial, Remaining: serial - 1})
	return serial, true
}

// Cancel returns the slot held by id to the pool. It returns false if id has
// no pending slot or the manager is stopped.
func (m *Manager[K]) Cancel(id K) bool {
	if m.stopped.Load() {
		return false
	}
	v, ok := m.ledger.LoadAndDelete(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.release()
	remaining := m.counter.release()

	m.emit(Event{Kind: EventCancelled, Key: m.key(id), Serial: e.serial, Remaining: remaining, Held: time.Since(e.takenAt)})
	return true
}

// Confirm consumes the slot held by id permanently. It returns false if id
// has no pending slot or the manager is stopped.
func (m *Manager[K]) Confirm(id K) bool {
	if m.stopped.Load() {
		return false
	}
	v, ok := m.ledger.LoadAndDelete(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.release()

	m.emit(Event{Kind: EventConfirmed, Key: m.key(id), Serial: e.serial, Remaining: m.counter.load(), Held: time.Since(e.takenAt)})
	return true
}

// ExpireAllUnconfirmed expires every pending slot now: timers are cancelled,
// slots return to the pool and OnExpire runs for each identifier on the
// calling goroutine.
func (m *Manager[K]) ExpireAllUnconfirmed(ctx context.Context) {
	m.ledger.Range(func(k, v any) bool {
		e := v.(*entry)
		e.release()
		m.expire(ctx, k.(K), e)
		return true
	})
}

// expire resolves e as expired if it is still the pending entry for id.
func (m *Manager[K]) expire(ctx context.Context, id K, e *entry) {
	if !m.ledger.CompareAndDelete(id, e) {
		return
	}
	remaining := m.counter.release()
	m.onExpire(ctx, id)

	m.logger.Debug("slot expired", "serial", e.serial, "remaining", remaining)
	m.emit(Event{Kind: EventExpired, Key: m.key(id), Serial: e.serial, Remaining: remaining, Held: time.Since(e.takenAt)})
}

// Stop rejects new takes, waits for running expiration callbacks, expires
// every pending slot and returns the remaining count. Later calls only return
// the current count.
func (m *Manager[K]) Stop() int64 {
	first := m.stopped.CompareAndSwap(false, true)
	m.scheduler.Shutdown()
	m.ExpireAllUnconfirmed(context.Background())

	remaining := m.counter.load()
	if first {
		m.logger.Info("quota manager stopped", "remaining", remaining)
	}
	return remaining
}

// ForceStop is Stop without waiting: running expiration callbacks have their
// context cancelled and are left to finish on their own. It returns
// ErrInterrupted if any of them were still running.
//
// An interrupted callback may have returned its slot without finishing
// OnExpire. The counter stays consistent either way.
func (m *Manager[K]) ForceStop() (int64, error) {
	first := m.stopped.CompareAndSwap(false, true)
	running := m.scheduler.ShutdownNow()
	m.ExpireAllUnconfirmed(context.Background())

	remaining := m.counter.load()
	if first {
		m.logger.Warn("quota manager force stopped", "remaining", remaining, "interrupted", running)
	}
	if running > 0 {
		return remaining, fmt.Errorf("%w: %d still running", ErrInterrupted, running)
	}
	return remaining, nil
}

// Close stops the manager. It always returns nil.
func (m *Manager[K]) Close() error {
	m.Stop()
	return nil
}

// WatchApprox returns the remaining slot count for monitoring. It performs
// the same atomic load as WatchExact.
func (m *Manager[K]) WatchApprox() int64 {
	return m.counter.load()
}

// WatchExact returns the remaining slot count.
func (m *Manager[K]) WatchExact() int64 {
	return m.counter.load()
}

// Pending returns the number of slots awaiting confirm, cancel or expiry.
func (m *Manager[K]) Pending() int {
	n := 0
	m.ledger.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stopped reports whether Stop or ForceStop has been called.
func (m *Manager[K]) Stopped() bool {
	return m.stopped.Load()
}

// Name returns the manager name.
func (m *Manager[K]) Name() string {
	return m.name
}

func (m *Manager[K]) reject(id K, reason Reason) {
	m.emit(Event{Kind: EventRejected, Key: m.key(id), Reason: reason, Remaining: m.counter.load()})
}

func (m *Manager[K]) key(id K) string {
	if len(m.observers) == 0 {
		return ""
	}
	return fmt.Sprint(id)
}

func (m *Manager[K]) emit(ev Event) {
	if len(m.observers) == 0 {
		return
	}
	ev.Pool = m.name
	ev.At = time.Now()
	for _, o := range m.observers {
		o.Observe(ev)
	}
}
