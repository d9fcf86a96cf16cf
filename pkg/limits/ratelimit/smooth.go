package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// SmoothLimiter adapts a golang.org/x/time/rate limiter to RateLimiter.
// Permits refill continuously instead of once per interval.
type SmoothLimiter struct {
	lim      *rate.Limiter
	timeout  time.Duration
	observer Observer
}

var _ RateLimiter = (*SmoothLimiter)(nil)

// NewSmooth wraps lim. TryAcquire waits at most timeout for a permit; zero
// means do not wait.
func NewSmooth(lim *rate.Limiter, timeout time.Duration) *SmoothLimiter {
	return &SmoothLimiter{lim: lim, timeout: timeout}
}

// NewSmoothPerInterval builds a SmoothLimiter granting capacity permits per
// interval with a burst of burst permits. A burst <= 0 uses capacity.
func NewSmoothPerInterval(capacity int, interval time.Duration, burst int, timeout time.Duration) *SmoothLimiter {
	if burst <= 0 {
		burst = capacity
	}
	every := rate.Every(interval / time.Duration(capacity))
	return NewSmooth(rate.NewLimiter(every, burst), timeout)
}

// WithObserver sets the observer notified of permit decisions.
func (s *SmoothLimiter) WithObserver(o Observer) *SmoothLimiter {
	s.observer = o
	return s
}

// TryAcquire implements RateLimiter.
func (s *SmoothLimiter) TryAcquire(ctx context.Context) bool {
	granted := s.tryAcquire(ctx)
	if s.observer != nil {
		s.observer.PermitDecision(granted)
	}
	return granted
}

func (s *SmoothLimiter) tryAcquire(ctx context.Context) bool {
	if s.lim.Allow() {
		return true
	}
	if s.timeout <= 0 {
		return false
	}

	// Wait fails fast when the reservation would exceed the deadline.
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.lim.Wait(waitCtx) == nil
}

// Limiter returns the underlying rate.Limiter.
func (s *SmoothLimiter) Limiter() *rate.Limiter {
	return s.lim
}
