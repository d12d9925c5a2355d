package subscription

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"organizer/domain"
)

// DefaultBuffer is the per-subscriber queue length used when none is given.
const DefaultBuffer = 64

// Subscriber receives every event published after it subscribed, in publish
// order. Its channel is closed when it is unsubscribed or when it falls more
// than its buffer behind; a closed channel means the consumer must resync.
type Subscriber struct {
	ch chan domain.Event
}

func (s *Subscriber) Events() <-chan domain.Event { return s.ch }

// Hub fans events out to in-process subscribers.
type Hub struct {
	buffer int

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan domain.Event, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.ch)
	}
}

// Publish delivers ev to every subscriber without blocking. A subscriber whose
// queue is full is disconnected rather than silently skipped.
func (h *Hub) Publish(_ context.Context, ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			delete(h.subs, s)
			close(s.ch)
			log.WithField("kind", ev.Kind).Warn("disconnecting slow subscriber")
		}
	}
}

// DisconnectAll closes every subscriber and returns how many there were.
func (h *Hub) DisconnectAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.subs)
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
	return n
}

// Len reports the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
