package stripegw

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ec-shop/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

type fakeSessions struct {
	params []*stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func testRequest(amount string) payment.SessionRequest {
	return payment.SessionRequest{
		OrderID:    "order-1",
		Name:       "Payment for transaction order-1",
		Amount:     decimal.RequireFromString(amount),
		Currency:   payment.Currency,
		SuccessURL: "http://localhost:3000/orders",
		CancelURL:  "http://localhost:3000/failure",
	}
}

func TestGateway_CreateCheckoutSession(t *testing.T) {
	sessions := &fakeSessions{}
	gw := NewGateway(sessions, nil)

	s, err := gw.CreateCheckoutSession(context.Background(), testRequest("100.50"))
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.NotEmpty(t, s.URL)

	require.Len(t, sessions.params, 1)
	p := sessions.params[0]
	assert.Equal(t, "payment", *p.Mode)
	assert.Equal(t, []*string{stripe.String("card")}, p.PaymentMethodTypes)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(10050), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(1), *p.LineItems[0].Quantity)
	assert.Equal(t, "order-1", *p.ClientReferenceID)
	assert.Equal(t, "http://localhost:3000/orders", *p.SuccessURL)
}

func TestGateway_RoundsToCents(t *testing.T) {
	tests := []struct {
		amount string
		cents  int64
	}{
		{"100", 10000},
		{"0.1", 10},
		{"19.999", 2000},
		{"60.27", 6027},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			sessions := &fakeSessions{}
			gw := NewGateway(sessions, nil)

			_, err := gw.CreateCheckoutSession(context.Background(), testRequest(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.cents, *sessions.params[0].LineItems[0].PriceData.UnitAmount)
		})
	}
}

func TestGateway_BreakerOpensOnOutage(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("connection reset")}
	gw := NewGateway(sessions, nil)
	ctx := context.Background()

	for i := 0; i < failureThreshold; i++ {
		_, err := gw.CreateCheckoutSession(ctx, testRequest("10"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, payment.ErrGatewayUnavailable)
	}

	_, err := gw.CreateCheckoutSession(ctx, testRequest("10"))
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	assert.Len(t, sessions.params, failureThreshold)
}

func TestGateway_RequestErrorsDoNotTrip(t *testing.T) {
	sessions := &fakeSessions{err: &stripe.Error{HTTPStatusCode: 402, Msg: "card declined"}}
	gw := NewGateway(sessions, nil)
	ctx := context.Background()

	for i := 0; i < failureThreshold+2; i++ {
		_, err := gw.CreateCheckoutSession(ctx, testRequest("10"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, payment.ErrGatewayUnavailable)
	}
	assert.Len(t, sessions.params, failureThreshold+2)
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, isSuccessful(nil))
	assert.True(t, isSuccessful(&stripe.Error{HTTPStatusCode: 400}))
	assert.False(t, isSuccessful(&stripe.Error{HTTPStatusCode: 503}))
	assert.False(t, isSuccessful(errors.New("timeout")))
}
