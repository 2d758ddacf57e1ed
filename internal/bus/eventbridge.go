package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// EventBridgeBus publishes events to an EventBridge bus. Routing rules that
// deliver the events to the downstream stages live outside this module.
type EventBridgeBus struct {
	client  *eventbridge.Client
	busName string
	log     *slog.Logger
}

var _ Bus = (*EventBridgeBus)(nil)

// NewEventBridgeBus wraps an EventBridge client and target bus name.
func NewEventBridgeBus(client *eventbridge.Client, busName string, log *slog.Logger) *EventBridgeBus {
	if log == nil {
		log = slog.Default()
	}
	return &EventBridgeBus{client: client, busName: busName, log: log}
}

// Publish sends one event. PutEvents can partially fail without an error on
// the call itself, so the per-entry error code is checked too.
func (b *EventBridgeBus) Publish(ctx context.Context, ev Event) error {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}

	out, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			Source:       aws.String(ev.Source),
			DetailType:   aws.String(ev.DetailType),
			Detail:       aws.String(string(detail)),
			EventBusName: aws.String(b.busName),
		}},
	})
	if err != nil {
		return fmt.Errorf("put event %q: %w", ev.DetailType, err)
	}
	if out.FailedEntryCount > 0 {
		entry := out.Entries[0]
		return fmt.Errorf("put event %q: %s (%s)",
			ev.DetailType, aws.ToString(entry.ErrorMessage), aws.ToString(entry.ErrorCode))
	}

	b.log.Info("event_published",
		"source", ev.Source,
		"detail_type", ev.DetailType,
		"event_id", aws.ToString(out.Entries[0].EventId))
	return nil
}
