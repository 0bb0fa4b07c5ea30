package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	users map[string]*user.User
	err   error
}

func (f *fakeUsers) Get(ctx context.Context, id string) (*user.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

type sentMail struct {
	to string
	c  email.OrderConfirmation
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendOrderConfirmation(ctx context.Context, to string, c email.OrderConfirmation) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, c: c})
	return nil
}

func encodeEvent(t *testing.T, eventType string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	value, err := json.Marshal(store.Event{
		ID:            "evt-1",
		AggregateID:   "order-1",
		AggregateType: order.AggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     time.Now().UTC(),
		Version:       1,
	})
	require.NoError(t, err)
	return value
}

func orderPlaced() order.OrderPlaced {
	return order.OrderPlaced{
		OrderID: "order-1",
		UserID:  "user-1",
		Items: []order.OrderItem{
			{ProductID: "p-1", Name: "Widget", Quantity: 5, Price: decimal.NewFromInt(20)},
			{ProductID: "p-2", Quantity: 1, Price: decimal.RequireFromString("0.27")},
		},
		Total:    decimal.RequireFromString("100.27"),
		PlacedAt: time.Now().UTC(),
	}
}

func newHandler() (*Handler, *fakeUsers, *fakeMailer) {
	users := &fakeUsers{users: map[string]*user.User{
		"user-1": {ID: "user-1", Email: "alice@example.com", Name: "Alice"},
	}}
	mailer := &fakeMailer{}
	return NewHandler(users, mailer, nil), users, mailer
}

func TestHandler_OrderPlaced_SendsConfirmation(t *testing.T) {
	h, _, mailer := newHandler()

	err := h.HandleEvent(context.Background(), []byte("order-1"), encodeEvent(t, order.EventOrderPlaced, orderPlaced()))
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	sent := mailer.sent[0]
	assert.Equal(t, "alice@example.com", sent.to)
	assert.Equal(t, "order-1", sent.c.OrderID)
	assert.Equal(t, "Alice", sent.c.CustomerName)
	assert.True(t, decimal.RequireFromString("100.27").Equal(sent.c.Total))
	require.Len(t, sent.c.Items, 2)
	assert.Equal(t, "Widget", sent.c.Items[0].Name)
	assert.Equal(t, "p-2", sent.c.Items[1].Name, "falls back to the product id")
}

func TestHandler_IgnoresOtherEvents(t *testing.T) {
	h, _, mailer := newHandler()

	err := h.HandleEvent(context.Background(), nil, encodeEvent(t, "CartItemAdded", map[string]string{"user_id": "user-1"}))
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestHandler_DropsUndecodableInput(t *testing.T) {
	h, _, mailer := newHandler()

	assert.NoError(t, h.HandleEvent(context.Background(), nil, []byte("not json")))

	value, _ := json.Marshal(store.Event{ID: "evt-1", EventType: order.EventOrderPlaced, Data: json.RawMessage(`"nope"`)})
	assert.NoError(t, h.HandleEvent(context.Background(), nil, value))
	assert.Empty(t, mailer.sent)
}

func TestHandler_UnknownUserIsDropped(t *testing.T) {
	h, users, mailer := newHandler()
	delete(users.users, "user-1")

	err := h.HandleEvent(context.Background(), nil, encodeEvent(t, order.EventOrderPlaced, orderPlaced()))
	assert.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestHandler_RetriableFailures(t *testing.T) {
	t.Run("user lookup", func(t *testing.T) {
		h, users, _ := newHandler()
		users.err = errors.New("connection refused")
		err := h.HandleEvent(context.Background(), nil, encodeEvent(t, order.EventOrderPlaced, orderPlaced()))
		assert.Error(t, err)
	})

	t.Run("mail delivery", func(t *testing.T) {
		h, _, mailer := newHandler()
		mailer.err = errors.New("smtp down")
		err := h.HandleEvent(context.Background(), nil, encodeEvent(t, order.EventOrderPlaced, orderPlaced()))
		assert.Error(t, err)
	})
}
