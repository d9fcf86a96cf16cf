package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Strategy selects how fired callbacks are executed.
type Strategy string

const (
	// StrategyLightweight runs each fired callback on its own goroutine.
	StrategyLightweight Strategy = "lightweight"

	// StrategyHeavyweight runs fired callbacks on a fixed set of goroutines
	// locked to OS threads.
	StrategyHeavyweight Strategy = "heavyweight"
)

// ErrClosed is returned by Schedule once the scheduler has been shut down.
var ErrClosed = errors.New("expiry: scheduler is shut down")

// ParseStrategy parses a strategy name. The empty string selects
// StrategyLightweight.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", string(StrategyLightweight):
		return StrategyLightweight, nil
	case string(StrategyHeavyweight):
		return StrategyHeavyweight, nil
	default:
		return "", fmt.Errorf("expiry: unknown strategy %q", s)
	}
}

// Scheduler executes a callback once after a delay.
type Scheduler interface {
	// Schedule arranges for fn to run once after delay. The context passed to
	// fn is cancelled when the scheduler is shut down abruptly.
	Schedule(delay time.Duration, fn func(ctx context.Context)) (Handle, error)

	// Shutdown discards pending callbacks and waits for running ones.
	Shutdown()

	// ShutdownNow discards pending callbacks, cancels the context of running
	// callbacks and returns how many of them are still executing.
	ShutdownNow() int
}

// Handle refers to a scheduled callback.
type Handle interface {
	// Cancel prevents the callback from running. It returns false if the
	// callback already started or was cancelled before.
	Cancel() bool
}

// Config configures a TimerScheduler.
type Config struct {
	// Workers bounds the number of callbacks running at the same time.
	// Default: runtime.NumCPU()
	Workers int

	// Strategy selects the execution backend.
	// Default: StrategyLightweight
	Strategy Strategy

	// Logger receives callback panics. Default: slog.Default()
	Logger *slog.Logger
}

// TimerScheduler implements Scheduler on top of time.AfterFunc.
type TimerScheduler struct {
	strategy Strategy
	workers  int
	logger   *slog.Logger

	// slots bounds concurrent callbacks for the lightweight strategy.
	slots chan struct{}

	// queue hands fired callbacks to heavyweight workers.
	queue    chan func(context.Context)
	quit     chan struct{}
	workerWG sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders running.Add against the Wait in Shutdown.
	mu      sync.RWMutex
	closed  bool
	running sync.WaitGroup
	active  atomic.Int64

	pending     sync.Map // *timerHandle -> struct{}
	releaseOnce sync.Once
}

var _ Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler creates a scheduler and, for the heavyweight strategy,
// starts its worker goroutines.
func NewTimerScheduler(cfg Config) *TimerScheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyLightweight
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &TimerScheduler{
		strategy: cfg.Strategy,
		workers:  cfg.Workers,
		logger:   cfg.Logger.With("component", "expiry.scheduler"),
		quit:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	switch cfg.Strategy {
	case StrategyHeavyweight:
		s.queue = make(chan func(context.Context))
		for i := 0; i < cfg.Workers; i++ {
			s.workerWG.Add(1)
			go s.worker()
		}
	default:
		s.slots = make(chan struct{}, cfg.Workers)
	}

	return s
}

// Schedule implements Scheduler.
func (s *TimerScheduler) Schedule(delay time.Duration, fn func(ctx context.Context)) (Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	h := &timerHandle{sched: s}
	h.mu.Lock()
	s.pending.Store(h, struct{}{})
	h.timer = time.AfterFunc(delay, func() { s.fire(h, fn) })
	h.mu.Unlock()

	return h, nil
}

// Shutdown implements Scheduler.
func (s *TimerScheduler) Shutdown() {
	s.close()
	s.running.Wait()
	s.release(true)
}

// ShutdownNow implements Scheduler.
func (s *TimerScheduler) ShutdownNow() int {
	s.close()
	s.release(false)
	return int(s.active.Load())
}

// Pending returns the number of callbacks that have not fired yet.
func (s *TimerScheduler) Pending() int {
	n := 0
	s.pending.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Running returns the number of callbacks currently executing.
func (s *TimerScheduler) Running() int {
	return int(s.active.Load())
}

// Strategy returns the execution strategy.
func (s *TimerScheduler) Strategy() Strategy {
	return s.strategy
}

// close rejects further scheduling and discards every pending callback.
func (s *TimerScheduler) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.pending.Range(func(k, _ any) bool {
		k.(*timerHandle).Cancel()
		return true
	})
}

// release cancels the callback context and stops heavyweight workers.
func (s *TimerScheduler) release(wait bool) {
	s.releaseOnce.Do(func() {
		s.cancel()
		close(s.quit)
	})
	if wait {
		s.workerWG.Wait()
	}
}

func (s *TimerScheduler) fire(h *timerHandle, fn func(context.Context)) {
	s.pending.Delete(h)
	if !h.claimed.CompareAndSwap(false, true) {
		return
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.running.Add(1)
	s.mu.RUnlock()

	if s.strategy == StrategyHeavyweight {
		select {
		case s.queue <- fn:
		case <-s.ctx.Done():
			s.running.Done()
		}
		return
	}

	select {
	case s.slots <- struct{}{}:
	case <-s.ctx.Done():
		s.running.Done()
		return
	}
	defer func() { <-s.slots }()
	s.run(fn)
}

func (s *TimerScheduler) worker() {
	defer s.workerWG.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case fn := <-s.queue:
			s.run(fn)
		case <-s.quit:
			return
		}
	}
}

func (s *TimerScheduler) run(fn func(context.Context)) {
	s.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("expiration callback panicked", "panic", r)
		}
		s.active.Add(-1)
		s.running.Done()
	}()
	fn(s.ctx)
}

type timerHandle struct {
	sched   *TimerScheduler
	mu      sync.Mutex
	timer   *time.Timer
	claimed atomic.Bool // set by whichever of fire or Cancel gets there first
}

// Cancel implements Handle.
func (h *timerHandle) Cancel() bool {
	if !h.claimed.CompareAndSwap(false, true) {
		return false
	}
	h.mu.Lock()
	h.timer.Stop()
	h.mu.Unlock()
	h.sched.pending.Delete(h)
	return true
}
