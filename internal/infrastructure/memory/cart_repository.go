package memory

import (
	"context"
	"sync"

	"github.com/example/ec-shop/internal/domain/cart"
)

type CartRepository struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart

	GetErr    error
	SaveErr   error
	DeleteErr error
}

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]*cart.Cart)}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	c, ok := r.carts[userID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return c.Clone(), nil
}

func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}

	stored, ok := r.carts[c.UserID]
	switch {
	case c.Version == 0 && ok:
		return cart.ErrVersionConflict
	case c.Version != 0 && (!ok || stored.Version != c.Version):
		return cart.ErrVersionConflict
	}

	c.Version++
	r.carts[c.UserID] = c.Clone()
	return nil
}

func (r *CartRepository) DeleteVersion(ctx context.Context, userID string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DeleteErr != nil {
		return r.DeleteErr
	}

	stored, ok := r.carts[userID]
	if !ok {
		return cart.ErrCartNotFound
	}
	if stored.Version != version {
		return cart.ErrVersionConflict
	}
	delete(r.carts, userID)
	return nil
}

// Len reports how many carts are stored.
func (r *CartRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}
