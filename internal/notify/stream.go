package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Event is what an SSE subscriber receives.
type Event struct {
	Kind  Kind              `json:"kind"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Refs  map[string]string `json:"refs,omitempty"`
	At    time.Time         `json:"at"`
}

type subscriber struct {
	ch chan Event
}

// StreamHub keeps the open SSE connections per user. Delivery never blocks: a subscriber
// whose buffer is full misses the event.
type StreamHub struct {
	mu     sync.RWMutex
	subs   map[uint64]map[*subscriber]struct{}
	buffer int
	closed bool
}

func NewStreamHub(buffer int) *StreamHub {
	if buffer <= 0 {
		buffer = 16
	}
	return &StreamHub{
		subs:   make(map[uint64]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

func (h *StreamHub) Name() string { return "stream" }

// Subscribe registers a listener for userID. Call the returned func to detach; it closes the channel.
func (h *StreamHub) Subscribe(userID uint64) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.remove(userID, sub) })
	}
}

func (h *StreamHub) remove(userID uint64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, userID)
	}
}

// Subscribers returns how many connections userID has open.
func (h *StreamHub) Subscribers(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *StreamHub) Deliver(_ context.Context, msg Message) error {
	ev := Event{Kind: msg.Kind, Title: msg.Title, Body: msg.Body, Refs: msg.Refs, At: msg.CreatedAt}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, r := range msg.Recipients {
		for sub := range h.subs[r.ID] {
			select {
			case sub.ch <- ev:
			default:
				dropped++
			}
		}
	}
	if dropped > 0 {
		return fmt.Errorf("dropped %d events for slow subscribers", dropped)
	}
	return nil
}

// Close ends every open subscription. Used on shutdown so SSE handlers return.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, userID)
	}
	h.closed = true
}
