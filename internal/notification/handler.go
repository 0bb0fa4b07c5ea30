// Package notification reacts to journaled events delivered by a broker or stream.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"go.uber.org/zap"
)

type UserFinder interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

type Mailer interface {
	SendOrderConfirmation(ctx context.Context, to string, c email.OrderConfirmation) error
}

// Handler sends customer notifications
type Handler struct {
	users  UserFinder
	mailer Mailer
	logger *zap.Logger
}

func NewHandler(users UserFinder, mailer Mailer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, mailer: mailer, logger: logger.Named("notifier")}
}

// HandleEvent accepts one store.Event encoded as JSON. A returned error means the event may be retried.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		// undecodable input will never succeed
		h.logger.Error("dropping undecodable event", zap.ByteString("key", key), zap.Error(err))
		return nil
	}

	switch event.EventType {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(ctx, event)
	default:
		return nil
	}
}

func (h *Handler) handleOrderPlaced(ctx context.Context, event store.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error("dropping malformed OrderPlaced", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}

	u, err := h.users.Get(ctx, e.UserID)
	if errors.Is(err, user.ErrUserNotFound) {
		h.logger.Warn("order placed by unknown user", zap.String("order_id", e.OrderID), zap.String("user_id", e.UserID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up user %s: %w", e.UserID, err)
	}

	items := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		items[i] = email.OrderItem{Name: name, Quantity: item.Quantity, Price: item.Price}
	}

	return h.mailer.SendOrderConfirmation(ctx, u.Email, email.OrderConfirmation{
		OrderID:      e.OrderID,
		CustomerName: u.Name,
		Items:        items,
		Total:        e.Total,
	})
}
