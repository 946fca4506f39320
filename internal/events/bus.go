package events

import (
	"context"
	"sync"
)

// Handler consumes one published event. Handlers must not block for long;
// the bus invokes them synchronously in subscription order so that listeners
// observe events in the order they were published.
type Handler func(ctx context.Context, event interface{})

// Bus is a minimal in-process publish/subscribe bus keyed by topic. It
// decouples stage-completion listeners from the persisting call path.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the given topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers the event to every handler subscribed to the topic.
func (b *Bus) Publish(ctx context.Context, topic string, event interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}
