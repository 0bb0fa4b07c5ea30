package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventPaymentSessionCreated = "PaymentSessionCreated"

type PaymentSessionCreated struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
}
