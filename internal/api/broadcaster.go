package api

import (
	"sync"

	"github.com/menta2k/camera-capture/pkg/capture"
	"github.com/menta2k/camera-capture/pkg/output"
)

// EventBroadcaster distributes capture events to websocket clients
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan capture.Event]struct{}
}

// NewEventBroadcaster creates a new broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[chan capture.Event]struct{}),
	}
}

// Subscribe returns a channel that receives events and a cleanup function.
// The caller must call the cleanup when the client goes away.
func (b *EventBroadcaster) Subscribe() (<-chan capture.Event, func()) {
	ch := make(chan capture.Event, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Subscribers returns the number of connected clients
func (b *EventBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends evt to every subscriber. Encoded image data is stripped;
// slow clients miss events instead of stalling the capture worker.
func (b *EventBroadcaster) Publish(evt capture.Event) {
	evt.Descriptor = stripData(evt.Descriptor)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- evt:
		default:
			// channel full, skip
		}
	}
}

var _ capture.EventSink = (*EventBroadcaster)(nil)

// stripData returns desc without its encoded payload
func stripData(desc *output.Descriptor) *output.Descriptor {
	if desc == nil || desc.Data == "" {
		return desc
	}
	stripped := *desc
	stripped.Data = ""
	return &stripped
}
