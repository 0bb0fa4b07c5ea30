package memory

import (
	"context"
	"sync"

	"github.com/example/ec-shop/internal/domain/payment"
)

type PaymentRepository struct {
	mu       sync.RWMutex
	payments []payment.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

func (r *PaymentRepository) Insert(ctx context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, *p)
	return nil
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]*payment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*payment.Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			p := p
			list = append(list, &p)
		}
	}
	return list, nil
}
