package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/domain"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxAttempts = 5

type Service struct {
	repo        Repository
	carts       Carts
	catalog     Catalog
	journal     store.Journal
	guard       Guard
	logger      *zap.Logger
	maxAttempts int
}

type Option func(*Service)

// WithGuard rejects concurrent duplicates of an idempotency key before they reach the cart.
func WithGuard(g Guard) Option {
	return func(s *Service) { s.guard = g }
}

// WithMaxAttempts bounds how often checkout re-prices a cart that changed under it.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewService(repo Repository, carts Carts, catalog Catalog, journal store.Journal, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:        repo,
		carts:       carts,
		catalog:     catalog,
		journal:     journal,
		logger:      logger.Named("order"),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder turns the user's cart into an order priced from the live catalog and deletes the cart.
// With a non-empty idempotencyKey a repeated call returns the order already placed under that key.
func (s *Service) PlaceOrder(ctx context.Context, userID, idempotencyKey string) (*Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if idempotencyKey == "" {
		return s.place(ctx, userID, "")
	}

	if existing, err := s.repo.FindByIdempotencyKey(ctx, userID, idempotencyKey); err == nil {
		s.logger.Info("idempotent replay", zap.String("user_id", userID), zap.String("order_id", existing.ID))
		return existing, nil
	} else if !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}

	if s.guard != nil {
		guardKey := "order:" + userID + ":" + idempotencyKey
		acquired, err := s.guard.Acquire(ctx, guardKey)
		switch {
		case err != nil:
			// the unique index on the key still prevents a second order
			s.logger.Warn("idempotency guard unavailable", zap.String("user_id", userID), zap.Error(err))
		case !acquired:
			return nil, ErrIdempotencyInProgress
		default:
			defer func() {
				if err := s.guard.Release(context.WithoutCancel(ctx), guardKey); err != nil {
					s.logger.Warn("failed to release idempotency guard", zap.String("key", guardKey), zap.Error(err))
				}
			}()
		}
	}

	o, err := s.place(ctx, userID, idempotencyKey)
	if errors.Is(err, ErrEmptyCart) {
		// a duplicate of this request may have consumed the cart first
		if existing, findErr := s.repo.FindByIdempotencyKey(ctx, userID, idempotencyKey); findErr == nil {
			return existing, nil
		}
	}
	return o, err
}

func (s *Service) place(ctx context.Context, userID, idempotencyKey string) (*Order, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		c, err := s.carts.Load(ctx, userID)
		if errors.Is(err, cart.ErrCartNotFound) {
			return nil, ErrEmptyCart
		}
		if err != nil {
			return nil, err
		}
		if c.IsEmpty() {
			return nil, ErrEmptyCart
		}

		products, err := s.catalog.FindByIDs(ctx, c.ProductIDs())
		if err != nil {
			return nil, err
		}
		items, err := snapshot(c, products)
		if err != nil {
			return nil, err
		}

		err = s.carts.Claim(ctx, c)
		if errors.Is(err, cart.ErrVersionConflict) {
			s.logger.Debug("cart changed during checkout, re-pricing",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, cart.ErrCartNotFound) {
			// a concurrent checkout consumed the cart
			return nil, ErrEmptyCart
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOrderPersistenceFailed, err)
		}

		o := &Order{
			ID:             uuid.New().String(),
			UserID:         userID,
			Items:          items,
			Total:          Total(items),
			IdempotencyKey: idempotencyKey,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.repo.Create(ctx, o); err != nil {
			return s.rollback(ctx, c, o, err)
		}

		s.logger.Info("order placed",
			zap.String("order_id", o.ID),
			zap.String("user_id", userID),
			zap.String("total", o.Total.String()),
			zap.Int("items", len(o.Items)))
		if s.journal != nil {
			if _, err := s.journal.Append(ctx, o.ID, AggregateType, EventOrderPlaced, newOrderPlaced(o)); err != nil {
				s.logger.Error("failed to journal order", zap.String("order_id", o.ID), zap.Error(err))
			}
		}
		return o, nil
	}

	return nil, cart.ErrConcurrentModification
}

// rollback puts the claimed cart back after the order insert failed.
func (s *Service) rollback(ctx context.Context, claimed *cart.Cart, o *Order, createErr error) (*Order, error) {
	restoreErr := s.carts.Restore(context.WithoutCancel(ctx), claimed)
	if restoreErr != nil {
		s.logger.Error("order not persisted and cart not restored",
			zap.String("user_id", claimed.UserID),
			zap.Any("items", claimed.Items),
			zap.NamedError("create_error", createErr),
			zap.NamedError("restore_error", restoreErr))
		return nil, errors.Join(fmt.Errorf("%w: %w", ErrOrderPersistenceFailed, createErr), restoreErr)
	}

	if errors.Is(createErr, ErrDuplicateIdempotencyKey) {
		existing, err := s.repo.FindByIdempotencyKey(ctx, o.UserID, o.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrOrderPersistenceFailed, err)
	}

	s.logger.Error("order not persisted, cart restored", zap.String("user_id", claimed.UserID), zap.Error(createErr))
	return nil, fmt.Errorf("%w: %w", ErrOrderPersistenceFailed, createErr)
}

// ListOrders returns the user's orders, newest first, with each line joined to the current product.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]View, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, o := range orders {
		for _, item := range o.Items {
			if _, ok := seen[item.ProductID]; !ok {
				seen[item.ProductID] = struct{}{}
				ids = append(ids, item.ProductID)
			}
		}
	}

	products := map[string]*product.Product{}
	if len(ids) > 0 {
		if products, err = s.catalog.FindByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}

	views := make([]View, len(orders))
	for i, o := range orders {
		items := make([]ItemView, len(o.Items))
		for j, item := range o.Items {
			items[j] = ItemView{Item: item, Product: products[item.ProductID]}
		}
		views[i] = View{
			ID:        o.ID,
			UserID:    o.UserID,
			Items:     items,
			Total:     o.Total,
			CreatedAt: o.CreatedAt,
		}
	}
	return views, nil
}

// Get returns one of the user's orders. Orders of other users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	o, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}
