package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a journaled domain event.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// newEvent encodes data and stamps a fresh event id.
func newEvent(aggregateID, aggregateType, eventType string, data any, version int) (Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s data: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now().UTC(),
		Version:       version,
	}, nil
}

// EventStore is the in-process journal: one ordered log, versioned per aggregate.
// Every appended event is handed to the publisher, if any.
type EventStore struct {
	mu        sync.RWMutex
	log       []Event
	versions  map[string]int
	publisher Publisher
}

func NewEventStore(publisher Publisher) *EventStore {
	return &EventStore{versions: make(map[string]int), publisher: publisher}
}

// Append keeps the event even when publishing it fails; the error then reports the publish failure.
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	es.mu.Lock()
	event, err := newEvent(aggregateID, aggregateType, eventType, data, es.versions[aggregateID]+1)
	if err == nil {
		es.versions[aggregateID] = event.Version
		es.log = append(es.log, event)
	}
	es.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if es.publisher == nil {
		return &event, nil
	}
	if err := es.publisher.Publish(ctx, aggregateID, event); err != nil {
		return &event, fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return &event, nil
}

// Events returns the aggregate's events in version order.
func (es *EventStore) Events(aggregateID string) []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()
	var events []Event
	for _, e := range es.log {
		if e.AggregateID == aggregateID {
			events = append(events, e)
		}
	}
	return events
}

// All returns every event in append order.
func (es *EventStore) All() []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.log...)
}
