package bus

import (
	"context"
	"testing"
)

func TestMemoryBusDeliversToAllHandlers(t *testing.T) {
	b := NewMemoryBus()

	var first, second int
	b.Subscribe(func(ctx context.Context, ev Event) error { first++; return nil })
	b.Subscribe(func(ctx context.Context, ev Event) error { second++; return nil })

	if err := b.Publish(context.Background(), Event{DetailType: "t"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if first != 1 || second != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", first, second)
	}
	if len(b.Published()) != 1 {
		t.Errorf("recorded %d events, want 1", len(b.Published()))
	}
}

func TestMemoryBusRedeliverDuplicatesDelivery(t *testing.T) {
	b := NewMemoryBus()
	b.Redeliver = true

	var calls int
	b.Subscribe(func(ctx context.Context, ev Event) error { calls++; return nil })

	if err := b.Publish(context.Background(), Event{DetailType: "t"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
	// The event itself is recorded once; only delivery is duplicated.
	if len(b.Published()) != 1 {
		t.Errorf("recorded %d events, want 1", len(b.Published()))
	}
}

func TestPublishedOfTypeFilters(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	b.Publish(ctx, Event{DetailType: "a"})
	b.Publish(ctx, Event{DetailType: "b"})
	b.Publish(ctx, Event{DetailType: "a"})

	if got := len(b.PublishedOfType("a")); got != 2 {
		t.Errorf("PublishedOfType(a) = %d, want 2", got)
	}
}
