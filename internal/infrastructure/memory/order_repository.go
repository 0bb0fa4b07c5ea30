package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-shop/internal/domain/order"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order

	CreateErr error
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*order.Order)}
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	return &cp
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if o.IdempotencyKey != "" {
		for _, existing := range r.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
				return order.ErrDuplicateIdempotencyKey
			}
		}
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*order.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			list = append(list, cloneOrder(o))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// Len reports how many orders are stored.
func (r *OrderRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
