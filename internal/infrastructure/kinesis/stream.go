// Package kinesis turns DynamoDB journal inserts delivered through a Kinesis stream back into journaled events.
package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"go.uber.org/zap"
)

// Item attributes written by store.DynamoEventStore.
const (
	attrID            = "id"
	attrAggregateID   = "aggregate_id"
	attrAggregateType = "aggregate_type"
	attrEventType     = "event_type"
	attrData          = "data"
	attrCreatedAt     = "created_at"
	attrVersion       = "version"
)

var ErrMalformedRecord = errors.New("malformed journal record")

// Handler receives one event encoded as store.Event JSON and keyed by aggregate id,
// the same shape the broker consumers deliver.
type Handler func(ctx context.Context, key, value []byte) error

// Decode extracts the journaled event from a Kinesis record carrying a DynamoDB stream change.
// Changes other than inserts return nil without error.
func Decode(record events.KinesisEventRecord) (*store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return DecodeStreamRecord(change)
}

// DecodeStreamRecord is Decode for a record read from DynamoDB Streams directly.
func DecodeStreamRecord(change events.DynamoDBEventRecord) (*store.Event, error) {
	if change.EventName != string(events.DynamoDBOperationTypeInsert) {
		return nil, nil
	}
	return eventFromImage(change.Change.NewImage)
}

func eventFromImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrMalformedRecord)
	}

	str := func(name string) string {
		v, ok := image[name]
		if !ok || v.DataType() != events.DataTypeString {
			return ""
		}
		return v.String()
	}

	event := &store.Event{
		ID:            str(attrID),
		AggregateID:   str(attrAggregateID),
		AggregateType: str(attrAggregateType),
		EventType:     str(attrEventType),
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("%w: missing id, aggregate_id or event_type", ErrMalformedRecord)
	}

	if data := str(attrData); data != "" {
		if !json.Valid([]byte(data)) {
			return nil, fmt.Errorf("%w: data of event %s is not JSON", ErrMalformedRecord, event.ID)
		}
		event.Data = json.RawMessage(data)
	}
	if created := str(attrCreatedAt); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("%w: created_at: %w", ErrMalformedRecord, err)
		}
		event.Timestamp = t
	}
	if v, ok := image[attrVersion]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("%w: version: %w", ErrMalformedRecord, err)
		}
		event.Version = int(version)
	}
	return event, nil
}

// Dispatch hands every decoded event of the batch to h. Records that cannot be decoded are logged
// and skipped since a retry would fail the same way. Records whose handler failed are reported
// back so Lambda retries only those.
func Dispatch(ctx context.Context, batch events.KinesisEvent, h Handler, logger *zap.Logger) events.KinesisEventResponse {
	if logger == nil {
		logger = zap.NewNop()
	}

	var resp events.KinesisEventResponse
	for _, record := range batch.Records {
		event, err := Decode(record)
		if err != nil {
			logger.Error("skipping undecodable record",
				zap.String("event_id", record.EventID),
				zap.String("sequence_number", record.Kinesis.SequenceNumber),
				zap.Error(err))
			continue
		}
		if event == nil {
			continue
		}

		value, err := json.Marshal(event)
		if err != nil {
			logger.Error("failed to encode event", zap.String("id", event.ID), zap.Error(err))
			continue
		}
		if err := h(ctx, []byte(event.AggregateID), value); err != nil {
			logger.Warn("handler failed, record will be retried",
				zap.String("event_type", event.EventType),
				zap.String("sequence_number", record.Kinesis.SequenceNumber),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
		}
	}
	return resp
}
