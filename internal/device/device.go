// Package device delivers output-device connectivity changes (headset
// attach/detach, route changes) to the orchestrator. Producers are
// platform integrations; this package only fans events in. The
// orchestrator updates an observable flag and takes no playback-altering
// action on its own.
package device

import "sync"

// Event is a device connectivity change.
type Event struct {
	Connected bool
	Name      string // device name if the platform reports one
}

const hubBufferSize = 8

// Hub fans device events from platform integrations to one consumer.
type Hub struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewHub creates a new device event hub.
func NewHub() *Hub {
	return &Hub{ch: make(chan Event, hubBufferSize)}
}

// Publish delivers an event without blocking; stale events are dropped if
// the consumer lags.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.ch <- e:
	default:
	}
}

// Events returns the consumer channel.
func (h *Hub) Events() <-chan Event {
	return h.ch
}

// Close closes the event channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.ch)
}
