package store

import "context"

// Journal records domain events in append-only order.
type Journal interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
}

// Publisher forwards journaled events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
