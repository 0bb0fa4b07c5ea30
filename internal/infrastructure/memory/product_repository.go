package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-shop/internal/domain/product"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]product.Product

	FindErr error
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]product.Product)}
}

func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = *p
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; !ok {
		return product.ErrProductNotFound
	}
	r.products[p.ID] = *p
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return product.ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	p, ok := r.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return &p, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	found := make(map[string]*product.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			found[id] = &p
		}
	}
	return found, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*product.Product, 0, len(r.products))
	for _, p := range r.products {
		p := p
		list = append(list, &p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}
