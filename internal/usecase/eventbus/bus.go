package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"uplevel-orchestrator/internal/domain"
)

// Bus is an in-process synchronous event bus. Handlers run on the
// publisher's goroutine; a panicking handler is recovered and logged so one
// bad subscriber cannot take down a dispatch.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]subscription
	all      []subscription
	nextID   int
	logger   *slog.Logger
}

type subscription struct {
	id      int
	handler domain.EventHandler
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[domain.EventType][]subscription),
		logger:   logger,
	}
}

// Publish delivers event to type subscribers and catch-all subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.handlers[event.Type])+len(b.all))
	subs = append(subs, b.handlers[event.Type]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, sub, event)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", event.Type, "panic", r)
		}
	}()
	sub.handler(ctx, event)
}

// Subscribe registers handler for one event type and returns an unsubscribe
// function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.all {
			if sub.id == id {
				b.all = append(b.all[:i], b.all[i+1:]...)
				return
			}
		}
	}
}
