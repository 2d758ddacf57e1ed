package bus

import (
	"context"
	"sync"
)

// Handler consumes one delivered event.
type Handler func(ctx context.Context, ev Event) error

// MemoryBus is an in-process Bus that invokes subscribed handlers
// synchronously on Publish. It backs the single-binary `run` mode and the
// tests. With Redeliver set, every event is delivered to each handler twice,
// simulating the at-least-once substrate so idempotent consumption is
// exercised rather than assumed.
type MemoryBus struct {
	mu        sync.Mutex
	handlers  []Handler
	published []Event

	// Redeliver duplicates every delivery.
	Redeliver bool
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *MemoryBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish records the event and delivers it to every handler. Handler errors
// do not abort delivery to the remaining handlers; the first error is
// returned.
func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	b.published = append(b.published, ev)
	handlers := append([]Handler(nil), b.handlers...)
	redeliver := b.Redeliver
	b.mu.Unlock()

	deliveries := 1
	if redeliver {
		deliveries = 2
	}

	var firstErr error
	for i := 0; i < deliveries; i++ {
		for _, h := range handlers {
			if err := h(ctx, ev); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Published returns a copy of all events published so far.
func (b *MemoryBus) Published() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.published...)
}

// PublishedOfType returns published events with the given detail type.
func (b *MemoryBus) PublishedOfType(detailType string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, ev := range b.published {
		if ev.DetailType == detailType {
			out = append(out, ev)
		}
	}
	return out
}
