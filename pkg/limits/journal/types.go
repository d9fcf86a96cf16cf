package journal

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by backend operations after Close.
var ErrClosed = errors.New("journal: backend closed")

// Backend stores slot event records.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Append stores a record. The record ID must be set.
	Append(ctx context.Context, record *Record) error

	// Query returns records matching the filter, oldest first.
	Query(ctx context.Context, filter *Filter) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Cleanup removes records recorded before olderThan.
	// Returns the number of records deleted and any error.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the backend.
	// The backend should not be used after calling Close.
	Close() error
}

// Record is one journaled slot event.
type Record struct {
	// ID is a unique record identifier (UUID).
	ID string

	// Pool is the quota pool name.
	Pool string

	// Key is the slot identifier.
	Key string

	// Kind is the transition: taken, rejected, confirmed, cancelled, expired.
	Kind string

	// Reason explains rejected takes.
	Reason string

	// Serial is the slot serial number.
	Serial int64

	// Remaining is the pool's remaining count after the transition.
	Remaining int64

	// Held is how long the slot was pending before it was resolved.
	Held time.Duration

	// RecordedAt is when the transition happened.
	RecordedAt time.Time
}

// Filter selects records in Query. Zero fields match everything.
type Filter struct {
	Pool  string
	Kind  string
	Key   string
	Since time.Time
	Until time.Time

	// Limit caps the number of records returned. 0 means no limit.
	Limit int
}

// matches reports whether r satisfies f.
func (f *Filter) matches(r *Record) bool {
	if f == nil {
		return true
	}
	if f.Pool != "" && r.Pool != f.Pool {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Key != "" && r.Key != f.Key {
		return false
	}
	if !f.Since.IsZero() && r.RecordedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.RecordedAt.Before(f.Until) {
		return false
	}
	return true
}
