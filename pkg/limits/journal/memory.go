package journal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a MemoryBackend created without a limit.
const DefaultMaxEntries = 100000

// MemoryBackend implements Backend using in-memory storage.
// All data is lost when the process exits. When MaxEntries is reached the
// oldest record is evicted.
//
// MemoryBackend is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryBackend struct {
	// records is kept in append order.
	records []*Record

	mu         sync.RWMutex
	maxEntries int
	closed     bool
}

// NewMemoryBackend creates a new in-memory backend holding at most maxEntries
// records. maxEntries <= 0 uses DefaultMaxEntries.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryBackend{maxEntries: maxEntries}
}

// Append stores a record.
func (m *MemoryBackend) Append(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if len(m.records) >= m.maxEntries {
		// Evict oldest
		m.records[0] = nil
		m.records = m.records[1:]
	}
	m.records = append(m.records, record)

	return nil
}

// Query returns records matching the filter, oldest first.
func (m *MemoryBackend) Query(ctx context.Context, filter *Filter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var out []*Record
	for _, r := range m.records {
		if !filter.matches(r) {
			continue
		}
		out = append(out, r)
		if filter != nil && filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of stored records.
func (m *MemoryBackend) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	return int64(len(m.records)), nil
}

// Cleanup removes records recorded before olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	kept := m.records[:0]
	deleted := 0
	for _, r := range m.records {
		if r.RecordedAt.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(m.records); i++ {
		m.records[i] = nil
	}
	m.records = kept

	return deleted, nil
}

// Close releases the stored records.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}
