package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore implements Store over a DynamoDB table with partition key
// "marker_id". All transitions use condition expressions so that exactly one
// of any set of concurrent writers wins.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	clock  func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore wraps a DynamoDB client and table name.
func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, clock: time.Now}
}

// TryBegin claims the identity with a create-if-absent conditional put.
// On conflict it inspects the existing marker: Completed short-circuits,
// Pending refuses, Failed is taken over with a second conditional write.
func (s *DynamoStore) TryBegin(ctx context.Context, id, correlationID string) error {
	marker := Marker{
		ID:            id,
		Status:        StatusPending,
		CorrelationID: correlationID,
		StartedAt:     s.clock().UTC(),
	}
	item, err := attributevalue.MarshalMap(marker)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(marker_id)"),
	})
	if err == nil {
		return nil
	}
	var conditionFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionFailed) {
		return fmt.Errorf("claim marker %s: %w", id, err)
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		// The competing marker vanished between the put and the read;
		// treat it as contention rather than retrying in a loop here.
		return fmt.Errorf("%w: %s", ErrInProgress, id)
	}
	switch existing.Status {
	case StatusCompleted:
		return fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
	case StatusPending:
		return fmt.Errorf("%w: %s", ErrInProgress, id)
	case StatusFailed:
		return s.reclaimFailed(ctx, id, correlationID)
	default:
		return fmt.Errorf("marker %s has invalid status %q", id, existing.Status)
	}
}

// reclaimFailed moves Failed -> Pending, conditional on the marker still
// being Failed so only one retry wins the takeover.
func (s *DynamoStore) reclaimFailed(ctx context.Context, id, correlationID string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 markerKey(id),
		UpdateExpression:    aws.String("SET #s = :pending, correlation_id = :cid, started_at = :now REMOVE failure_reason"),
		ConditionExpression: aws.String("#s = :failed"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: StatusPending},
			":failed":  &types.AttributeValueMemberS{Value: StatusFailed},
			":cid":     &types.AttributeValueMemberS{Value: correlationID},
			":now":     &types.AttributeValueMemberS{Value: s.clock().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s", ErrInProgress, id)
		}
		return fmt.Errorf("reclaim failed marker %s: %w", id, err)
	}
	return nil
}

// Complete transitions Pending -> Completed.
func (s *DynamoStore) Complete(ctx context.Context, id string, outputs []string) error {
	outputsAV, err := attributevalue.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 markerKey(id),
		UpdateExpression:    aws.String("SET #s = :completed, completed_at = :now, output_locations = :outputs"),
		ConditionExpression: aws.String("#s = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": &types.AttributeValueMemberS{Value: StatusCompleted},
			":pending":   &types.AttributeValueMemberS{Value: StatusPending},
			":now":       &types.AttributeValueMemberS{Value: s.clock().UTC().Format(time.RFC3339Nano)},
			":outputs":   outputsAV,
		},
	})
	if err != nil {
		return fmt.Errorf("complete marker %s: %w", id, err)
	}
	return nil
}

// Fail transitions Pending -> Failed.
func (s *DynamoStore) Fail(ctx context.Context, id, reason string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 markerKey(id),
		UpdateExpression:    aws.String("SET #s = :failed, completed_at = :now, failure_reason = :reason"),
		ConditionExpression: aws.String("#s = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":  &types.AttributeValueMemberS{Value: StatusFailed},
			":pending": &types.AttributeValueMemberS{Value: StatusPending},
			":now":     &types.AttributeValueMemberS{Value: s.clock().UTC().Format(time.RFC3339Nano)},
			":reason":  &types.AttributeValueMemberS{Value: reason},
		},
	})
	if err != nil {
		return fmt.Errorf("fail marker %s: %w", id, err)
	}
	return nil
}

// Get returns the marker, or nil when absent.
func (s *DynamoStore) Get(ctx context.Context, id string) (*Marker, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            markerKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get marker %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var m Marker
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("unmarshal marker %s: %w", id, err)
	}
	return &m, nil
}

func markerKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"marker_id": &types.AttributeValueMemberS{Value: id},
	}
}
