// Package hub fans room events out to live subscribers. Every subscriber of a
// room topic receives every event published to it, in publish order, on its
// own buffered channel. A subscriber that stops draining loses events rather
// than stalling the publisher.
package hub

import (
	"io"
	"log/slog"
	"sync"

	"github.com/jmcleod/taskveil/chat"
)

const subscriptionBuffer = 256

// Hub is the per-room topic registry.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
}

// Option configures the Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		topics: make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers an event to every current subscriber of the room topic.
// Delivery to a subscriber with a full buffer is dropped.
func (h *Hub) Publish(roomID string, ev chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.topics[roomID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber", "room_id", roomID, "kind", ev.Kind)
		}
	}
}

// Subscribe registers a new subscriber on the room topic.
func (h *Hub) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		hub:    h,
		roomID: roomID,
		ch:     make(chan chat.Event, subscriptionBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[roomID] == nil {
		h.topics[roomID] = make(map[*Subscription]struct{})
	}
	h.topics[roomID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[sub.roomID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.roomID)
	}
	close(sub.ch)
}

// Subscription is one subscriber's handle on a room topic.
type Subscription struct {
	hub    *Hub
	roomID string
	ch     chan chat.Event
	once   sync.Once
}

// Events is the subscriber's event channel. It is closed by Close.
func (s *Subscription) Events() <-chan chat.Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}
