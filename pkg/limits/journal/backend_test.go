package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// backendFactories runs each backend test against every implementation.
var backendFactories = []struct {
	name string
	new  func(t *testing.T) Backend
}{
	{
		name: "memory",
		new: func(t *testing.T) Backend {
			return NewMemoryBackend(0)
		},
	},
	{
		name: "sqlite",
		new: func(t *testing.T) Backend {
			b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "journal.db"))
			if err != nil {
				t.Fatalf("NewSQLiteBackend failed: %v", err)
			}
			return b
		},
	},
}

func testRecord(id, pool, kind string, at time.Time) *Record {
	return &Record{
		ID:         id,
		Pool:       pool,
		Key:        "slot-" + id,
		Kind:       kind,
		Serial:     42,
		Remaining:  7,
		Held:       15 * time.Millisecond,
		RecordedAt: at,
	}
}

// ==================================================================
// Append and Query
// ==================================================================

func TestBackend_AppendAndQuery(t *testing.T) {
	for _, f := range backendFactories {
		t.Run(f.name, func(t *testing.T) {
			backend := f.new(t)
			defer backend.Close()

			ctx := context.Background()
			at := time.Now().Truncate(time.Microsecond)

			rec := testRecord("r1", "default", "taken", at)
			if err := backend.Append(ctx, rec); err != nil {
				t.Fatalf("Append failed: %v", err)
			}

			got, err := backend.Query(ctx, nil)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("Expected 1 record, got %d", len(got))
			}

			r := got[0]
			if r.ID != "r1" {
				t.Errorf("Expected ID r1, got %s", r.ID)
			}
			if r.Key != "slot-r1" {
				t.Errorf("Expected key slot-r1, got %s", r.Key)
			}
			if r.Serial != 42 {
				t.Errorf("Expected serial 42, got %d", r.Serial)
			}
			if r.Remaining != 7 {
				t.Errorf("Expected remaining 7, got %d", r.Remaining)
			}
			if r.Held != 15*time.Millisecond {
				t.Errorf("Expected held 15ms, got %v", r.Held)
			}
			if !r.RecordedAt.Equal(at) {
				t.Errorf("Expected recorded_at %v, got %v", at, r.RecordedAt)
			}
		})
	}
}

func TestBackend_AppendInvalid(t *testing.T) {
	for _, f := range backendFactories {
		t.Run(f.name, func(t *testing.T) {
			backend := f.new(t)
			defer backend.Close()

			ctx := context.Background()

			if err := backend.Append(ctx, nil); err == nil {
				t.Error("Expected error for nil record")
			}
			if err := backend.Append(ctx, &Record{Pool: "default"}); err == nil {
				t.Error("Expected error for record without ID")
			}
		})
	}
}

func TestBackend_QueryFilter(t *testing.T) {
	base := time.Now().Add(-time.Hour).Truncate(time.Microsecond)

	tests := []struct {
		name    string
		filter  *Filter
		wantIDs []string
	}{
		{
			name:    "nil filter",
			filter:  nil,
			wantIDs: []string{"a", "b", "c", "d"},
		},
		{
			name:    "by pool",
			filter:  &Filter{Pool: "api"},
			wantIDs: []string{"a", "c"},
		},
		{
			name:    "by kind",
			filter:  &Filter{Kind: "expired"},
			wantIDs: []string{"c", "d"},
		},
		{
			name:    "by pool and kind",
			filter:  &Filter{Pool: "api", Kind: "expired"},
			wantIDs: []string{"c"},
		},
		{
			name:    "by key",
			filter:  &Filter{Key: "slot-b"},
			wantIDs: []string{"b"},
		},
		{
			name:    "since",
			filter:  &Filter{Since: base.Add(2 * time.Minute)},
			wantIDs: []string{"c", "d"},
		},
		{
			name:    "until is exclusive",
			filter:  &Filter{Until: base.Add(2 * time.Minute)},
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "limit",
			filter:  &Filter{Limit: 3},
			wantIDs: []string{"a", "b", "c"},
		},
		{
			name:    "no match",
			filter:  &Filter{Pool: "missing"},
			wantIDs: nil,
		},
	}

	for _, f := range backendFactories {
		t.Run(f.name, func(t *testing.T) {
			backend := f.new(t)
			defer backend.Close()

			ctx := context.Background()
			seed := []*Record{
				testRecord("a", "api", "taken", base),
				testRecord("b", "batch", "taken", base.Add(time.Minute)),
				testRecord("c", "api", "expired", base.Add(2*time.Minute)),
				testRecord("d", "batch", "expired", base.Add(3*time.Minute)),
			}
			for _, r := range seed {
				if err := backend.Append(ctx, r); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := backend.Query(ctx, tt.filter)
					if err != nil {
						t.Fatalf("Query failed: %v", err)
					}
					if len(got) != len(tt.wantIDs) {
						t.Fatalf("Expected %d records, got %d", len(tt.wantIDs), len(got))
					}
					for i, id := range tt.wantIDs {
						if got[i].ID != id {
							t.Errorf("Expected record %d to be %s, got %s", i, id, got[i].ID)
						}
					}
				})
			}
		})
	}
}

// ==================================================================
// Count and Cleanup
// ==================================================================

func TestBackend_CountAndCleanup(t *testing.T) {
	for _, f := range backendFactories {
		t.Run(f.name, func(t *testing.T) {
			backend := f.new(t)
			defer backend.Close()

			ctx := context.Background()
			now := time.Now()

			for i := 0; i < 5; i++ {
				old := testRecord(fmt.Sprintf("old-%d", i), "default", "expired", now.Add(-48*time.Hour))
				if err := backend.Append(ctx, old); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}
			for i := 0; i < 3; i++ {
				fresh := testRecord(fmt.Sprintf("new-%d", i), "default", "taken", now)
				if err := backend.Append(ctx, fresh); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			count, err := backend.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if count != 8 {
				t.Errorf("Expected 8 records, got %d", count)
			}

			deleted, err := backend.Cleanup(ctx, now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if deleted != 5 {
				t.Errorf("Expected 5 deleted, got %d", deleted)
			}

			count, _ = backend.Count(ctx)
			if count != 3 {
				t.Errorf("Expected 3 records after cleanup, got %d", count)
			}
		})
	}
}

func TestBackend_ConcurrentAppend(t *testing.T) {
	for _, f := range backendFactories {
		t.Run(f.name, func(t *testing.T) {
			backend := f.new(t)
			defer backend.Close()

			ctx := context.Background()
			const goroutines = 10
			const perGoroutine = 20

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < perGoroutine; i++ {
						r := testRecord(fmt.Sprintf("g%d-%d", g, i), "default", "taken", time.Now())
						if err := backend.Append(ctx, r); err != nil {
							t.Errorf("Append failed: %v", err)
						}
					}
				}(g)
			}
			wg.Wait()

			count, err := backend.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if count != goroutines*perGoroutine {
				t.Errorf("Expected %d records, got %d", goroutines*perGoroutine, count)
			}
		})
	}
}

// ==================================================================
// Backend-specific behavior
// ==================================================================

func TestMemoryBackend_EvictsOldest(t *testing.T) {
	backend := NewMemoryBackend(3)
	defer backend.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := backend.Append(ctx, testRecord(fmt.Sprintf("r%d", i), "default", "taken", time.Now())); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, _ := backend.Query(ctx, nil)
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	if got[0].ID != "r2" {
		t.Errorf("Expected oldest kept record r2, got %s", got[0].ID)
	}
}

func TestMemoryBackend_Closed(t *testing.T) {
	backend := NewMemoryBackend(0)
	backend.Close()

	ctx := context.Background()
	if err := backend.Append(ctx, testRecord("r", "p", "taken", time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Append, got %v", err)
	}
	if _, err := backend.Query(ctx, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Query, got %v", err)
	}
	if _, err := backend.Count(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Count, got %v", err)
	}
}

func TestSQLiteBackend_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackend(""); err == nil {
		t.Error("Expected error for empty db path")
	}
}

func TestSQLiteBackend_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	backend, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	if err := backend.Append(ctx, testRecord("persisted", "default", "confirmed", time.Now())); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Query(ctx, &Filter{Kind: "confirmed"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "persisted" {
		t.Errorf("Expected persisted record after reopen, got %v", got)
	}
}

func TestSQLiteBackend_CloseIdempotent(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
