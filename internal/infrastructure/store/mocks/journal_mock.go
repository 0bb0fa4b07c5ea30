package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockJournal records Append calls for assertions in tests.
type MockJournal struct {
	mu sync.Mutex

	AppendCalls []AppendCall
	AppendErr   error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

func NewMockJournal() *MockJournal {
	return &MockJournal{AppendCalls: make([]AppendCall, 0)}
}

func (m *MockJournal) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	})

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       len(m.AppendCalls),
	}, nil
}

// Calls returns a copy of the recorded calls, safe to read while other goroutines append.
func (m *MockJournal) Calls() []AppendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AppendCall(nil), m.AppendCalls...)
}

// EventTypes lists the event types recorded so far, in order.
func (m *MockJournal) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.AppendCalls))
	for i, c := range m.AppendCalls {
		types[i] = c.EventType
	}
	return types
}
