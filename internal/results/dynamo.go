package results

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pulsepipe/pulsepipe/internal/record"
)

// DynamoStore implements Store over a DynamoDB table with partition key
// "correlation_id" and sort key "analysis_timestamp".
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore wraps a DynamoDB client and table name.
func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// Put persists one analysis result.
func (s *DynamoStore) Put(ctx context.Context, r record.AnalysisResult) error {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put result %s: %w", r.CorrelationID, err)
	}
	return nil
}

// Latest returns the most recent result for a correlation id.
func (s *DynamoStore) Latest(ctx context.Context, correlationID string) (*record.AnalysisResult, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("correlation_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: correlationID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query results for %s: %w", correlationID, err)
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, correlationID)
	}
	var r record.AnalysisResult
	if err := attributevalue.UnmarshalMap(out.Items[0], &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &r, nil
}

// ListUnnotified scans for unnotified results and returns the newest first.
// The table is small (one item per analysis run, TTL-expired after a week)
// so a filtered scan is acceptable here.
func (s *DynamoStore) ListUnnotified(ctx context.Context, limit int) ([]record.AnalysisResult, error) {
	var items []record.AnalysisResult
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("notified = :f"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":f": &types.AttributeValueMemberBOOL{Value: false},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan unnotified results: %w", err)
		}
		for _, item := range out.Items {
			var r record.AnalysisResult
			if err := attributevalue.UnmarshalMap(item, &r); err != nil {
				return nil, fmt.Errorf("unmarshal result: %w", err)
			}
			items = append(items, r)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].AnalysisTimestamp > items[j].AnalysisTimestamp
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// MarkNotified flips notified false -> true, conditional on it being false.
func (s *DynamoStore) MarkNotified(ctx context.Context, correlationID, analysisTimestamp, notifiedAt string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 resultKey(correlationID, analysisTimestamp),
		UpdateExpression:    aws.String("SET notified = :t, notified_at = :ts"),
		ConditionExpression: aws.String("notified = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":  &types.AttributeValueMemberBOOL{Value: true},
			":f":  &types.AttributeValueMemberBOOL{Value: false},
			":ts": &types.AttributeValueMemberS{Value: notifiedAt},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s@%s", ErrAlreadyNotified, correlationID, analysisTimestamp)
		}
		return fmt.Errorf("mark notified %s: %w", correlationID, err)
	}
	return nil
}

// ClearNotified reverts notified to false after a failed dispatch.
func (s *DynamoStore) ClearNotified(ctx context.Context, correlationID, analysisTimestamp string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              resultKey(correlationID, analysisTimestamp),
		UpdateExpression: aws.String("SET notified = :f REMOVE notified_at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return fmt.Errorf("clear notified %s: %w", correlationID, err)
	}
	return nil
}

func resultKey(correlationID, analysisTimestamp string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"correlation_id":     &types.AttributeValueMemberS{Value: correlationID},
		"analysis_timestamp": &types.AttributeValueMemberS{Value: analysisTimestamp},
	}
}
