package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/admission/pkg/limits/expiry"
)

type countingObserver struct {
	granted atomic.Int64
	denied  atomic.Int64
	refills atomic.Int64
	parked  atomic.Int64
}

func (o *countingObserver) PermitDecision(granted bool) {
	if granted {
		o.granted.Add(1)
	} else {
		o.denied.Add(1)
	}
}

func (o *countingObserver) Refilled(int, int, int) { o.refills.Add(1) }

func (o *countingObserver) Parked(delta int) { o.parked.Add(int64(delta)) }

func newTestLimiter(t *testing.T, cfg Config) *GenericRateLimiter {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(l.Stop)
	return l
}

// ============================================================================
// Configuration Tests
// ============================================================================

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }, true},
		{"negative capacity", func(c *Config) { c.Capacity = -1 }, true},
		{"high traffic with capacity 2", func(c *Config) { c.HighTraffic = true; c.Capacity = 2 }, true},
		{"high traffic with zero capacity", func(c *Config) { c.HighTraffic = true; c.Capacity = 0 }, true},
		{"high traffic with capacity 3", func(c *Config) { c.HighTraffic = true; c.Capacity = 3 }, false},
		{"zero interval", func(c *Config) { c.Interval = 0 }, true},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Millisecond }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, false},
		{"unknown strategy", func(c *Config) { c.Strategy = "virtual" }, true},
		{"heavyweight strategy", func(c *Config) { c.Strategy = expiry.StrategyHeavyweight }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			l, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if l != nil {
				l.Stop()
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Capacity != 10 {
		t.Errorf("Capacity = %d, want 10", cfg.Capacity)
	}
	if cfg.Interval != time.Second {
		t.Errorf("Interval = %v, want 1s", cfg.Interval)
	}
	if cfg.Timeout != 500*time.Millisecond {
		t.Errorf("Timeout = %v, want 500ms", cfg.Timeout)
	}
	if cfg.HighTraffic {
		t.Error("HighTraffic should default to false")
	}
}

// ============================================================================
// Normal Mode Tests
// ============================================================================

func TestGenericRateLimiter_ExhaustAndRefill(t *testing.T) {
	l := newTestLimiter(t, Config{
		Capacity: 10,
		Interval: 100 * time.Millisecond,
		Timeout:  10 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if !l.TryAcquire(ctx) {
			t.Fatalf("TryAcquire #%d denied, want granted", i+1)
		}
	}
	if l.TryAcquire(ctx) {
		t.Fatal("Eleventh TryAcquire granted, want timeout")
	}

	time.Sleep(110 * time.Millisecond)

	if !l.TryAcquire(ctx) {
		t.Error("TryAcquire after one interval denied, want granted")
	}
}

func TestGenericRateLimiter_RefillDoesNotCarryOver(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 5, Interval: time.Hour})

	l.refill()
	l.refill()

	if p, _, _ := l.AvailableCount(); p != 5 {
		t.Errorf("primary after repeated refills = %d, want 5", p)
	}

	ctx := context.Background()
	l.TryAcquire(ctx)
	l.TryAcquire(ctx)
	l.refill()

	if p, _, _ := l.AvailableCount(); p != 5 {
		t.Errorf("primary after refill = %d, want 5", p)
	}
}

func TestGenericRateLimiter_WaitsForRefill(t *testing.T) {
	l := newTestLimiter(t, Config{
		Capacity: 1,
		Interval: 50 * time.Millisecond,
		Timeout:  200 * time.Millisecond,
	})
	ctx := context.Background()

	if !l.TryAcquire(ctx) {
		t.Fatal("first TryAcquire denied")
	}

	start := time.Now()
	if !l.TryAcquire(ctx) {
		t.Fatal("TryAcquire should have waited for the next refill")
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("waited %v, expected roughly one interval", elapsed)
	}
}

func TestGenericRateLimiter_ContextCancelled(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 1, Interval: time.Hour, Timeout: time.Second})

	l.TryAcquire(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if l.TryAcquire(ctx) {
		t.Fatal("TryAcquire with cancelled context granted")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("cancelled context did not cut the wait short")
	}
}

func TestGenericRateLimiter_Concurrent(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 50, Interval: time.Hour})

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire(context.Background()) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 50 {
		t.Errorf("Expected exactly 50 grants, got %d", granted.Load())
	}
}

// ============================================================================
// High-Traffic Mode Tests
// ============================================================================

func TestGenericRateLimiter_HighTrafficShards(t *testing.T) {
	tests := []struct {
		capacity                int
		primary, second0, second1 int
	}{
		{9, 3, 3, 3},
		{10, 3, 3, 4},
		{11, 3, 3, 5},
		{3, 1, 1, 1},
	}

	for _, tt := range tests {
		l := newTestLimiter(t, Config{Capacity: tt.capacity, Interval: time.Hour, HighTraffic: true})

		p, s0, s1 := l.AvailableCount()
		if p != tt.primary || s0 != tt.second0 || s1 != tt.second1 {
			t.Errorf("capacity %d: AvailableCount() = (%d,%d,%d), want (%d,%d,%d)",
				tt.capacity, p, s0, s1, tt.primary, tt.second0, tt.second1)
		}
	}
}

func TestGenericRateLimiter_HighTrafficDrawsFromSecondaries(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 9, Interval: time.Hour, HighTraffic: true})
	ctx := context.Background()

	granted := 0
	for i := 0; i < 20; i++ {
		if l.TryAcquire(ctx) {
			granted++
		}
	}

	if granted != 6 {
		t.Errorf("Expected 6 grants from two shards of 3, got %d", granted)
	}
	p, s0, s1 := l.AvailableCount()
	if p != 3 {
		t.Errorf("primary = %d, want untouched 3", p)
	}
	if s0 != 0 || s1 != 0 {
		t.Errorf("secondaries = (%d,%d), want (0,0)", s0, s1)
	}

	l.refill()
	if p, s0, s1 := l.AvailableCount(); p != 3 || s0 != 3 || s1 != 3 {
		t.Errorf("after refill AvailableCount() = (%d,%d,%d), want (3,3,3)", p, s0, s1)
	}
}

func TestGenericRateLimiter_NormalModeSecondariesZero(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 9, Interval: time.Hour})

	if p, s0, s1 := l.AvailableCount(); p != 9 || s0 != 0 || s1 != 0 {
		t.Errorf("AvailableCount() = (%d,%d,%d), want (9,0,0)", p, s0, s1)
	}
}

// ============================================================================
// Parking Tests
// ============================================================================

func TestGenericRateLimiter_ParksDuringRefill(t *testing.T) {
	obs := &countingObserver{}
	l := newTestLimiter(t, Config{Capacity: 2, Interval: time.Hour, Observer: obs})
	l.refilling.Store(true)

	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		go func() { results <- l.TryAcquire(context.Background()) }()
	}

	deadline := time.Now().Add(time.Second)
	for l.Waiting() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 3 parked callers, got %d", l.Waiting())
		}
		time.Sleep(time.Millisecond)
	}

	l.refill()

	// Only min(2 permits, 3 waiters) are woken.
	for i := 0; i < 2; i++ {
		select {
		case ok := <-results:
			if !ok {
				t.Error("woken caller was denied")
			}
		case <-time.After(time.Second):
			t.Fatal("woken caller did not return")
		}
	}
	if l.Waiting() != 1 {
		t.Errorf("Expected 1 caller still parked, got %d", l.Waiting())
	}

	l.Stop()
	select {
	case ok := <-results:
		if ok {
			t.Error("caller released by Stop was granted")
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not release the parked caller")
	}

	if obs.parked.Load() != 0 {
		t.Errorf("parked gauge = %d after all callers resumed, want 0", obs.parked.Load())
	}
	if obs.refills.Load() != 1 {
		t.Errorf("refills = %d, want 1", obs.refills.Load())
	}
}

func TestGenericRateLimiter_ParkedContextCancel(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 1, Interval: time.Hour})
	l.refilling.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() { result <- l.TryAcquire(ctx) }()

	for l.Waiting() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if <-result {
		t.Error("cancelled parked caller was granted")
	}
	if l.Waiting() != 0 {
		t.Errorf("Expected cancelled caller to leave the waiter set, %d remain", l.Waiting())
	}
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestGenericRateLimiter_StopRejects(t *testing.T) {
	for _, strategy := range []expiry.Strategy{expiry.StrategyLightweight, expiry.StrategyHeavyweight} {
		t.Run(string(strategy), func(t *testing.T) {
			l, err := New(Config{Capacity: 5, Interval: 10 * time.Millisecond, Strategy: strategy})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			l.Stop()
			l.Stop()

			if l.TryAcquire(context.Background()) {
				t.Error("TryAcquire after Stop granted")
			}
			if err := l.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestGenericRateLimiter_StopReleasesTimedWait(t *testing.T) {
	l := newTestLimiter(t, Config{Capacity: 1, Interval: time.Hour, Timeout: 5 * time.Second})
	l.TryAcquire(context.Background())

	result := make(chan bool, 1)
	go func() { result <- l.TryAcquire(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	l.Stop()

	select {
	case ok := <-result:
		if ok {
			t.Error("waiting caller granted after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not release the waiting caller")
	}
}

func TestGenericRateLimiter_Observer(t *testing.T) {
	obs := &countingObserver{}
	l := newTestLimiter(t, Config{Capacity: 1, Interval: time.Hour, Observer: obs})
	ctx := context.Background()

	l.TryAcquire(ctx)
	l.TryAcquire(ctx)

	if obs.granted.Load() != 1 || obs.denied.Load() != 1 {
		t.Errorf("observer saw granted=%d denied=%d, want 1/1", obs.granted.Load(), obs.denied.Load())
	}
}

// ============================================================================
// Smooth Limiter Tests
// ============================================================================

func TestSmoothLimiter(t *testing.T) {
	obs := &countingObserver{}
	s := NewSmooth(rate.NewLimiter(rate.Every(time.Hour), 2), 0).WithObserver(obs)
	ctx := context.Background()

	if !s.TryAcquire(ctx) || !s.TryAcquire(ctx) {
		t.Fatal("Expected burst of 2 to be granted")
	}
	if s.TryAcquire(ctx) {
		t.Error("Expected third acquire to be denied")
	}
	if obs.granted.Load() != 2 || obs.denied.Load() != 1 {
		t.Errorf("observer saw granted=%d denied=%d, want 2/1", obs.granted.Load(), obs.denied.Load())
	}
}

func TestSmoothLimiter_WaitsWithinTimeout(t *testing.T) {
	s := NewSmoothPerInterval(10, 100*time.Millisecond, 1, 50*time.Millisecond)
	ctx := context.Background()

	if !s.TryAcquire(ctx) {
		t.Fatal("first acquire denied")
	}
	// Next permit arrives after 10ms, inside the 50ms timeout.
	if !s.TryAcquire(ctx) {
		t.Error("Expected acquire to wait for the next permit")
	}
}

func TestSmoothLimiter_TimeoutTooShort(t *testing.T) {
	s := NewSmooth(rate.NewLimiter(rate.Every(time.Second), 1), 10*time.Millisecond)
	ctx := context.Background()

	s.TryAcquire(ctx)
	if s.TryAcquire(ctx) {
		t.Error("Expected acquire to be denied when the next permit is beyond the timeout")
	}
}
