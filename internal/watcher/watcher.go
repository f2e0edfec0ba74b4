// Package watcher reports changes to the game logs directory.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"monopolylog/internal/model"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of writes to the same log.
const DefaultDebounce = 250 * time.Millisecond

// Publisher receives change notifications.
type Publisher interface {
	Publish(name string, data any) error
}

// Change is the payload of log.updated and log.removed events.
type Change struct {
	Name string `json:"name"`
}

// Watcher monitors a logs directory using OS-level notifications.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	pub      Publisher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher for the .json files in dir.
func New(dir string, pub Publisher) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close() //nolint:errcheck
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close() //nolint:errcheck
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	return &Watcher{
		fsw:      fsw,
		dir:      abs,
		pub:      pub,
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run forwards relevant file events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close() //nolint:errcheck
	defer w.stopPending()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		return
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancel(name)
		w.publish(model.EventLogRemoved, name)
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.schedule(name)
	}
}

// schedule publishes log.updated once writes to name settle.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[name]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()
		w.publish(model.EventLogUpdated, name)
	})
}

func (w *Watcher) cancel(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[name]; ok {
		t.Stop()
		delete(w.pending, name)
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
}

func (w *Watcher) publish(event, name string) {
	if err := w.pub.Publish(event, Change{Name: name}); err != nil {
		log.Printf("watcher: publish %s: %v", event, err)
	}
}
