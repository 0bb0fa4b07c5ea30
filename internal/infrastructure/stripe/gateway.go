// Package stripegw opens Stripe Checkout sessions behind a circuit breaker.
package stripegw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

const (
	failureThreshold = 5
	openTimeout      = 30 * time.Second
)

// SessionCreator is the slice of the Stripe client the gateway calls.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Gateway struct {
	sessions SessionCreator
	breaker  *gobreaker.CircuitBreaker[*payment.Session]
	logger   *zap.Logger
}

// NewStripeGateway builds a gateway on the live Stripe API.
func NewStripeGateway(secretKey string, logger *zap.Logger) *Gateway {
	return NewGateway(client.New(secretKey, nil).CheckoutSessions, logger)
}

func NewGateway(sessions SessionCreator, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("stripe")

	breaker := gobreaker.NewCircuitBreaker[*payment.Session](gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Gateway{sessions: sessions, breaker: breaker, logger: logger}
}

// CreateCheckoutSession charges req.Amount as a single card line item.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	cents := req.Amount.Shift(2).Round(0).IntPart()

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{payment.MethodCard}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Name),
				},
				UnitAmount: stripe.Int64(cents),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
	}
	params.Context = ctx

	session, err := g.breaker.Execute(func() (*payment.Session, error) {
		s, err := g.sessions.New(params)
		if err != nil {
			return nil, err
		}
		return &payment.Session{ID: s.ID, URL: s.URL}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", payment.ErrGatewayUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}

	g.logger.Info("checkout session created",
		zap.String("order_id", req.OrderID),
		zap.String("session_id", session.ID),
		zap.Int64("amount_cents", cents))
	return session, nil
}

// isSuccessful keeps request errors such as declined cards from tripping the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < 500
	}
	return false
}
