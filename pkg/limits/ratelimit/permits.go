package ratelimit

import (
	"context"
	"time"
)

// permitPool is a bounded counter of permits backed by a buffered channel.
//
// # Algorithm
//
//  1. Each buffered element is one permit
//  2. Acquire receives one element, waiting up to a timeout
//  3. Reset drains every element, then fills the buffer to capacity
//
// Draining before filling means permits are never additive across resets.
type permitPool struct {
	capacity int
	permits  chan struct{}
}

func newPermitPool(capacity int) *permitPool {
	p := &permitPool{
		capacity: capacity,
		permits:  make(chan struct{}, capacity),
	}
	p.fill()
	return p
}

// acquire takes one permit. It returns false if none became available within
// timeout, or if ctx or stop ended first.
func (p *permitPool) acquire(ctx context.Context, timeout time.Duration, stop <-chan struct{}) bool {
	select {
	case <-p.permits:
		return true
	default:
	}

	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.permits:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}

// reset drains the pool and refills it to capacity.
func (p *permitPool) reset() {
	for {
		select {
		case <-p.permits:
			continue
		default:
		}
		break
	}
	p.fill()
}

func (p *permitPool) fill() {
	for i := 0; i < p.capacity; i++ {
		select {
		case p.permits <- struct{}{}:
		default:
			return
		}
	}
}

// available returns the permits currently in the pool.
func (p *permitPool) available() int {
	return len(p.permits)
}
