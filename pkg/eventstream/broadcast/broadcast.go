// Package broadcast fans record events out to in-process subscribers, such as
// the live event stream of the API server.
package broadcast

import (
	"context"
	"sync"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/eventstream"
)

const defaultBufferSize = 64

// Hub is an eventstream.Publisher that hands every event to all current
// subscribers. A subscriber whose buffer is full misses the event; Publish
// never blocks.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	bufSize int
	closed  bool
}

// Subscription receives events until it or its Hub is closed, at which point
// C is closed.
type Subscription struct {
	C <-chan *eventstream.RecordEvent

	ch      chan *eventstream.RecordEvent
	hub     *Hub
	dropped int
}

// NewHub creates a Hub whose subscribers buffer up to bufSize events
// (defaults to 64).
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed Hub returns
// a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan *eventstream.RecordEvent, h.bufSize)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers event to every subscriber with room for it.
func (h *Hub) Publish(_ context.Context, event *eventstream.RecordEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- event:
		default:
			s.dropped++
		}
	}
	return nil
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. It is safe to call more than once.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
	return nil
}

// Close unsubscribes s. It is safe to call after the Hub is closed.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// Dropped returns how many events s missed because its buffer was full.
func (s *Subscription) Dropped() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}
