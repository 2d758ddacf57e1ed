// Package bus carries stage-completion events. Delivery is at-least-once
// with no ordering guarantee; every consumer must be an idempotent,
// order-independent handler.
package bus

import "context"

// Event is the envelope published on the bus. Detail holds one of the typed
// payloads from the record package and is serialized to JSON on the wire.
type Event struct {
	Source     string
	DetailType string
	Detail     any
}

// Bus publishes events.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
}
