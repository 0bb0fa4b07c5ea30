package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/domain"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AggregateType = "Payment"

	Currency      = "usd"
	MethodCard    = "card"
	StatusPending = "pending"
)

var (
	ErrGatewayUnavailable = errors.New("payment provider unavailable")
	ErrNothingToPay       = errors.New("order total must be greater than zero")
)

// Payment records a checkout session opened with the payment provider.
type Payment struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	OrderID       string          `json:"orderId"`
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Transaction   string          `json:"transaction"`
	Status        string          `json:"status"`
	SessionID     string          `json:"sessionId"`
	PaymentMethod string          `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SessionRequest describes a single-line checkout for an order's stored total.
type SessionRequest struct {
	OrderID    string
	Name       string
	Amount     decimal.Decimal
	Currency   string
	SuccessURL string
	CancelURL  string
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Gateway opens hosted checkout sessions with a payment provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	ListByOrder(ctx context.Context, orderID string) ([]*Payment, error)
}

// Orders looks up an order owned by the user.
type Orders interface {
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
}

type Config struct {
	SuccessURL string
	CancelURL  string
}

type Service struct {
	repo    Repository
	orders  Orders
	gateway Gateway
	journal store.Journal
	cfg     Config
	logger  *zap.Logger
}

func NewService(repo Repository, orders Orders, gateway Gateway, journal store.Journal, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, orders: orders, gateway: gateway, journal: journal, cfg: cfg, logger: logger.Named("payment")}
}

// CreatePayment opens a checkout session charging the order's stored total, never a client-supplied amount.
func (s *Service) CreatePayment(ctx context.Context, userID, orderID, name string) (*Payment, *Session, error) {
	if userID == "" {
		return nil, nil, domain.ErrUnauthenticated
	}

	o, err := s.orders.Get(ctx, userID, orderID)
	if err != nil {
		return nil, nil, err
	}
	if !o.Total.IsPositive() {
		return nil, nil, ErrNothingToPay
	}

	if strings.TrimSpace(name) == "" {
		name = "Order " + o.ID
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, SessionRequest{
		OrderID:    o.ID,
		Name:       "Payment for transaction " + o.ID,
		Amount:     o.Total,
		Currency:   Currency,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		s.logger.Error("checkout session failed", zap.String("order_id", o.ID), zap.Error(err))
		if errors.Is(err, ErrGatewayUnavailable) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	p := &Payment{
		ID:            uuid.New().String(),
		UserID:        userID,
		OrderID:       o.ID,
		Name:          name,
		Amount:        o.Total,
		Currency:      Currency,
		Transaction:   o.ID,
		Status:        StatusPending,
		SessionID:     session.ID,
		PaymentMethod: MethodCard,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, nil, err
	}

	if s.journal != nil {
		if _, err := s.journal.Append(ctx, p.ID, AggregateType, EventPaymentSessionCreated, PaymentSessionCreated{
			PaymentID: p.ID,
			OrderID:   o.ID,
			UserID:    userID,
			SessionID: session.ID,
			Amount:    p.Amount,
			Currency:  p.Currency,
			CreatedAt: p.CreatedAt,
		}); err != nil {
			s.logger.Warn("failed to journal event", zap.String("payment_id", p.ID), zap.Error(err))
		}
	}
	return p, session, nil
}
