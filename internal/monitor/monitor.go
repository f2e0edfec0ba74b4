// Package monitor polls the status endpoints of the game services.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"monopolylog/internal/model"
)

// DefaultInterval is used when a non-positive interval is configured.
const DefaultInterval = 5 * time.Second

// Publisher receives status change notifications.
type Publisher interface {
	Publish(name string, data any) error
}

// Monitor keeps the last known status of each configured service.
type Monitor struct {
	services map[string]string
	interval time.Duration
	client   *http.Client
	pub      Publisher
	now      func() time.Time

	mu       sync.RWMutex
	statuses map[string]model.ServiceStatus
}

// New returns a Monitor for services, a map of name to status URL.
// A nil client falls back to one with a short timeout.
func New(services map[string]string, interval time.Duration, client *http.Client, pub Publisher) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	m := &Monitor{
		services: make(map[string]string, len(services)),
		interval: interval,
		client:   client,
		pub:      pub,
		now:      time.Now,
		statuses: make(map[string]model.ServiceStatus, len(services)),
	}
	for name, url := range services {
		m.services[name] = url
		m.statuses[name] = model.ServiceStatus{Name: name, URL: url}
	}
	return m
}

// Run polls every service immediately and then once per interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if len(m.services) == 0 {
		return
	}

	m.PollOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce checks every service concurrently and records the results.
func (m *Monitor) PollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for name, url := range m.services {
		wg.Add(1)
		go func(name, url string) {
			defer wg.Done()
			m.record(m.check(ctx, name, url))
		}(name, url)
	}
	wg.Wait()
}

func (m *Monitor) check(ctx context.Context, name, url string) model.ServiceStatus {
	status := model.ServiceStatus{Name: name, URL: url, CheckedAt: m.now().UTC()}

	running, err := m.fetch(ctx, url)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Running = running
	return status
}

func (m *Monitor) fetch(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload struct {
		Running bool `json:"running"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode status: %w", err)
	}
	return payload.Running, nil
}

func (m *Monitor) record(status model.ServiceStatus) {
	m.mu.Lock()
	prev, seen := m.statuses[status.Name]
	m.statuses[status.Name] = status
	m.mu.Unlock()

	changed := !seen || prev.CheckedAt.IsZero() ||
		prev.Running != status.Running || prev.Error != status.Error
	if !changed || m.pub == nil {
		return
	}
	if err := m.pub.Publish(model.EventServiceStatus, status); err != nil {
		log.Printf("monitor: publish %s: %v", status.Name, err)
	}
}

// Snapshot returns the last known statuses sorted by name.
func (m *Monitor) Snapshot() []model.ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ServiceStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
