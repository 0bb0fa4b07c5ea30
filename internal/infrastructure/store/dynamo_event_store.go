package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by the journal.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoEventStore journals events in DynamoDB.
// The table's Kinesis stream integration carries events to consumers, so nothing is published here.
type DynamoEventStore struct {
	client    DynamoAPI
	tableName string
}

// dynamoEvent is the item layout; the attribute names are read back by the kinesis adapter.
type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
}

func NewDynamoEventStore(client DynamoAPI, tableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:    client,
		tableName: tableName,
	}
}

// Append writes the event at the next version; a conditional put rejects a version taken concurrently.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	event, err := newEvent(aggregateID, aggregateType, eventType, data, 0)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		version, err := es.nextVersion(ctx, aggregateID)
		if err != nil {
			return nil, fmt.Errorf("failed to get next version: %w", err)
		}
		event.Version = version

		av, err := attributevalue.MarshalMap(dynamoEvent{
			AggregateID:   event.AggregateID,
			Version:       event.Version,
			ID:            event.ID,
			AggregateType: event.AggregateType,
			EventType:     event.EventType,
			Data:          string(event.Data),
			CreatedAt:     event.Timestamp.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}

		_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(es.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
		})
		if err == nil {
			return &event, nil
		}
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) && attempt < maxAppendAttempts {
			continue
		}
		return nil, fmt.Errorf("failed to put event: %w", err)
	}
}

func (es *DynamoEventStore) nextVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, err
	}
	if len(result.Items) == 0 {
		return 1, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version + 1, nil
}

// GetEvents returns the aggregate's events in version order, following query pages to the end.
func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	pages := dynamodb.NewQueryPaginator(es.client, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward: aws.Bool(true),
	})

	var events []Event
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}
		for _, item := range page.Items {
			var de dynamoEvent
			if err := attributevalue.UnmarshalMap(item, &de); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event: %w", err)
			}
			events = append(events, de.event())
		}
	}
	return events, nil
}

func (de dynamoEvent) event() Event {
	timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)
	return Event{
		ID:            de.ID,
		AggregateID:   de.AggregateID,
		AggregateType: de.AggregateType,
		EventType:     de.EventType,
		Data:          json.RawMessage(de.Data),
		Timestamp:     timestamp,
		Version:       de.Version,
	}
}
