package api

import (
	"sync"

	"github.com/bryanchriswhite/captain/internal/workflow"
)

// Hub fans workflow events out to websocket subscribers
type Hub struct {
	mu        sync.RWMutex
	listeners []chan workflow.Event
}

// NewHub creates an event hub
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe adds a listener for workflow events
func (h *Hub) Subscribe() chan workflow.Event {
	ch := make(chan workflow.Event, 16)
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (h *Hub) Unsubscribe(ch chan workflow.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Publish implements workflow.EventSink
func (h *Hub) Publish(e workflow.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, listener := range h.listeners {
		select {
		case listener <- e:
		default:
			// Skip if channel is full
		}
	}
}
