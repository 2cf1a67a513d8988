package realtime

import (
	"log"
	"sync"

	"github.com/printflow/printflow/internal/core"
)

// Hub fans queue events out to every connected client. Delivery is
// at-most-once per subscriber: a slow consumer's events are dropped once its
// buffer fills, and clients reconcile by re-fetching their jobs. Events for
// one job keep their order because they are published from the engine's
// serialized mutation path.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	buffer      int
	closed      bool
}

type Subscriber struct {
	events chan core.Event
}

func (s *Subscriber) Events() <-chan core.Event {
	return s.events
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 64
	}
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		buffer:      buffer,
	}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{events: make(chan core.Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.events)
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.events)
}

// Publish never blocks the caller.
func (h *Hub) Publish(event core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			log.Printf("[sse] subscriber buffer full, dropping %s", event.Name)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.events)
	}
}
