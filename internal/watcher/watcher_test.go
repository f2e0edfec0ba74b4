package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"monopolylog/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	names  []string
}

func (r *recorder) Publish(name string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	if c, ok := data.(Change); ok {
		r.names = append(r.names, c.Name)
	}
	return nil
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]string(nil), r.names...)
}

func waitFor(t *testing.T, r *recorder, n int) ([]string, []string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		events, names := r.snapshot()
		if len(events) >= n {
			return events, names
		}
		time.Sleep(20 * time.Millisecond)
	}
	events, names := r.snapshot()
	t.Fatalf("timed out waiting for %d events, got %v", n, events)
	return events, names
}

func TestWatcherDebouncedUpdate(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w, err := New(dir, rec)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	p := filepath.Join(dir, "game_logs.json")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(p, []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, rec, 1)
	time.Sleep(2 * DefaultDebounce)
	events, names := rec.snapshot()

	if len(events) != 1 || events[0] != model.EventLogUpdated {
		t.Fatalf("expected a single log.updated, got %v", events)
	}
	if names[0] != "game_logs.json" {
		t.Fatalf("unexpected name: %v", names)
	}
}

func TestWatcherRemove(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "old.json")
	if err := os.WriteFile(p, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w, err := New(dir, rec)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}

	events, names := waitFor(t, rec, 1)
	if events[0] != model.EventLogRemoved || names[0] != "old.json" {
		t.Fatalf("unexpected events %v %v", events, names)
	}
}

func TestNewMissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent"), &recorder{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
