package config

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

const watchedConfig = `
limits:
  pools:
    api:
      capacity: %d
      ttl: 1s
`

func TestNewWatcher_EmptyPath(t *testing.T) {
	if _, err := NewWatcher("", 0); err == nil {
		t.Error("Expected error for empty path, got nil")
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	if _, err := NewWatcher("/nonexistent/dir/admission.yaml", 0); err == nil {
		t.Error("Expected error for missing directory, got nil")
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, sprintfConfig(10))

	w, err := NewWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	type result struct {
		cfg *Config
		err error
	}
	results := make(chan result, 4)

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- w.Watch(ctx, func(cfg *Config, err error) {
			results <- result{cfg, err}
		})
	}()
	defer func() {
		cancel()
		if err := <-watchDone; err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	}()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)

	// ====================================================================
	// Valid change
	// ====================================================================

	if err := os.WriteFile(path, []byte(sprintfConfig(25)), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("Expected successful reload, got %v", r.err)
		}
		if got := r.cfg.Limits.Pools["api"].Capacity; got != 25 {
			t.Errorf("Expected capacity 25, got %d", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected reload after write")
	}

	// ====================================================================
	// Invalid change
	// ====================================================================

	if err := os.WriteFile(path, []byte("limits: [not, a, map]"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case r := <-results:
		if r.err == nil {
			t.Error("Expected reload error for invalid YAML, got nil")
		}
		if r.cfg != nil {
			t.Error("Expected nil config on reload error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected reload after invalid write")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, sprintfConfig(10))

	w, err := NewWatcher(path, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	reloads := make(chan struct{}, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(path+".bak", []byte("x"), 0644)
	}()

	if err := w.Watch(ctx, func(*Config, error) { reloads <- struct{}{} }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if len(reloads) != 0 {
		t.Errorf("Expected no reloads for unrelated files, got %d", len(reloads))
	}
}

func TestWatcher_AlreadyRunning(t *testing.T) {
	path := writeConfig(t, sprintfConfig(10))

	w, err := NewWatcher(path, 0)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Watch(ctx, func(*Config, error) {})
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(time.Second)
	for {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if running || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := w.Watch(ctx, func(*Config, error) {}); err == nil {
		t.Error("Expected error for second Watch, got nil")
	}
}

func sprintfConfig(capacity int) string {
	return fmt.Sprintf(watchedConfig, capacity)
}
