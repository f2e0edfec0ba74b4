// Package hub fans real-time feed events out to dashboard subscribers.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"monopolylog/internal/model"

	"github.com/google/uuid"
)

const (
	inputBuffer      = 256
	subscriberBuffer = 256
)

// Hub receives published events and broadcasts them to every subscriber.
type Hub struct {
	input       chan model.FeedEvent
	mu          sync.RWMutex
	subscribers map[chan model.FeedEvent]struct{}
	dropped     int64
	now         func() time.Time
}

// New creates an idle Hub. Call Run to start broadcasting.
func New() *Hub {
	return &Hub{
		input:       make(chan model.FeedEvent, inputBuffer),
		subscribers: make(map[chan model.FeedEvent]struct{}),
		now:         time.Now,
	}
}

// Subscribe returns a buffered channel receiving every event published after
// the call, and a function that unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan model.FeedEvent, func()) {
	ch := make(chan model.FeedEvent, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns the total number of events dropped for slow subscribers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Publish queues a named event. data is JSON-encoded unless it already is
// raw JSON. It never blocks; when the queue is full the event is dropped.
func (h *Hub) Publish(name string, data any) error {
	raw, err := encodeData(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", name, err)
	}

	event := model.FeedEvent{
		ID:   uuid.NewString(),
		Name: name,
		Time: h.now().UTC(),
		Data: raw,
	}

	select {
	case h.input <- event:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		log.Printf("hub: input full, dropped %s", name)
	}
	return nil
}

// Run broadcasts queued events until the context is cancelled, then closes
// every subscriber channel.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.input:
			h.broadcast(event)
		}
	}
}

// broadcast sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped for that subscriber.
func (h *Hub) broadcast(event model.FeedEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.dropped++
			log.Printf("hub: dropped %s for slow consumer (total dropped: %d)", event.Name, h.dropped)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan model.FeedEvent]struct{})
}

func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("invalid raw JSON")
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}
