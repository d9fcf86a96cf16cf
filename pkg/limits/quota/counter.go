package quota

import (
	"sync/atomic"
)

// counter is the signed count of remaining slots.
//
// It uses atomic compare-and-swap so concurrent takers serialize only at the
// decrement itself.
//
// # Algorithm
//
//  1. Load the current value
//  2. If it is not positive, reject without writing
//  3. Otherwise CAS it to value-1, retrying on contention
//  4. Return the pre-decrement value as the slot serial
//
// # Thread Safety
//
// counter is lock-free and thread-safe using atomic operations.
type counter struct {
	remaining atomic.Int64
}

func newCounter(capacity int64) *counter {
	c := &counter{}
	c.remaining.Store(capacity)
	return c
}

// take decrements the counter if it is positive. It returns the value before
// the decrement and whether a slot was obtained.
func (c *counter) take() (int64, bool) {
	for {
		cur := c.remaining.Load()
		if cur <= 0 {
			return cur, false
		}
		if c.remaining.CompareAndSwap(cur, cur-1) {
			return cur, true
		}
	}
}

// release returns one slot and reports the new value.
func (c *counter) release() int64 {
	return c.remaining.Add(1)
}

// load returns the current value.
func (c *counter) load() int64 {
	return c.remaining.Load()
}
