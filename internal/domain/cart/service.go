package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/domain"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxRetries = 5

// cacheFillTimeout bounds a coalesced cart load, which no single caller's context governs.
const cacheFillTimeout = 5 * time.Second

type Service struct {
	repo       Repository
	catalog    Catalog
	journal    store.Journal
	cache      Cache
	logger     *zap.Logger
	maxRetries int
	sfg        singleflight.Group
}

type Option func(*Service)

// WithCache enables the read-through display cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMaxRetries bounds the compare-and-set retry loop of every mutation.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewService(repo Repository, catalog Catalog, journal store.Journal, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:       repo,
		catalog:    catalog,
		journal:    journal,
		logger:     logger.Named("cart"),
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItem merges quantity of productID into the user's cart, creating the cart on first use.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.catalog.FindByID(ctx, productID); err != nil {
		return nil, err
	}

	var newQuantity int
	c, err := s.mutate(ctx, userID, true, func(c *Cart) (bool, error) {
		var err error
		newQuantity, err = c.add(productID, quantity)
		return err == nil, err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("item added",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", newQuantity))
	s.record(ctx, userID, EventItemAdded, ItemAddedToCart{
		CartID:      GetCartID(userID),
		UserID:      userID,
		ProductID:   productID,
		Quantity:    quantity,
		NewQuantity: newQuantity,
		AddedAt:     c.UpdatedAt,
	})
	return c, nil
}

// RemoveItem drops the line for productID. Removing an absent item, or from an absent cart, succeeds without a write.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	removed := false
	c, err := s.mutate(ctx, userID, false, func(c *Cart) (bool, error) {
		removed = c.remove(productID)
		return removed, nil
	})
	if err != nil {
		return nil, err
	}

	if removed {
		s.record(ctx, userID, EventItemRemoved, ItemRemovedFromCart{
			CartID:    GetCartID(userID),
			UserID:    userID,
			ProductID: productID,
			RemovedAt: c.UpdatedAt,
		})
	}
	return c, nil
}

// GetCart returns the cart joined with live product details. A user without a cart gets an empty view.
func (s *Service) GetCart(ctx context.Context, userID string) (*View, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	c, err := s.cached(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		return &View{UserID: userID, Items: []ResolvedItem{}}, nil
	}
	if err != nil {
		return nil, err
	}

	products, err := s.catalog.FindByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, err
	}

	view := &View{UserID: userID, Items: make([]ResolvedItem, len(c.Items))}
	for i, item := range c.Items {
		view.Items[i] = ResolvedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product:   products[item.ProductID],
		}
	}
	if !c.UpdatedAt.IsZero() {
		updated := c.UpdatedAt
		view.UpdatedAt = &updated
	}
	return view, nil
}

// Load reads the stored cart directly, bypassing the cache. Checkout prices from this copy.
func (s *Service) Load(ctx context.Context, userID string) (*Cart, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.repo.Get(ctx, userID)
}

// Claim deletes c from the store only if nobody changed it since it was loaded.
// ErrVersionConflict means the cart moved on; ErrCartNotFound means another checkout took it.
func (s *Service) Claim(ctx context.Context, c *Cart) error {
	if err := s.repo.DeleteVersion(ctx, c.UserID, c.Version); err != nil {
		return err
	}
	s.invalidate(c.UserID)
	s.record(ctx, c.UserID, EventCartCheckedOut, CartCheckedOut{
		CartID:       GetCartID(c.UserID),
		UserID:       c.UserID,
		Version:      c.Version,
		CheckedOutAt: time.Now().UTC(),
	})
	return nil
}

// Restore merges the items of a claimed cart back into whatever cart the user has now.
// A line that would pass MaxQuantity is capped there.
func (s *Service) Restore(ctx context.Context, claimed *Cart) error {
	var capped []string
	_, err := s.mutate(ctx, claimed.UserID, true, func(c *Cart) (bool, error) {
		capped = capped[:0]
		for _, item := range claimed.Items {
			if c.merge(item.ProductID, item.Quantity) {
				capped = append(capped, item.ProductID)
			}
		}
		return len(claimed.Items) > 0, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCartRestoreFailed, err)
	}
	if len(capped) > 0 {
		s.logger.Warn("restored lines capped at maximum quantity",
			zap.String("user_id", claimed.UserID),
			zap.Strings("product_ids", capped))
	}

	s.logger.Warn("cart restored after failed checkout",
		zap.String("user_id", claimed.UserID),
		zap.Int("items", len(claimed.Items)))
	s.record(ctx, claimed.UserID, EventCartRestored, CartRestored{
		CartID:     GetCartID(claimed.UserID),
		UserID:     claimed.UserID,
		Items:      len(claimed.Items),
		RestoredAt: time.Now().UTC(),
	})
	return nil
}

// mutate runs a load, apply, compare-and-set loop. When the cart is absent and create is false,
// an empty unsaved cart is returned and fn is not called. fn reports whether it changed c;
// an error from fn ends the loop without a write.
func (s *Service) mutate(ctx context.Context, userID string, create bool, fn func(c *Cart) (bool, error)) (*Cart, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		c, err := s.repo.Get(ctx, userID)
		switch {
		case errors.Is(err, ErrCartNotFound):
			if !create {
				return newCart(userID), nil
			}
			c = newCart(userID)
		case err != nil:
			return nil, err
		}

		changed, err := fn(c)
		if err != nil {
			return nil, err
		}
		if !changed {
			return c, nil
		}
		c.UpdatedAt = time.Now().UTC()

		err = s.repo.Save(ctx, c)
		if errors.Is(err, ErrVersionConflict) {
			s.logger.Debug("cart version conflict, retrying",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.invalidate(userID)
		return c, nil
	}

	s.logger.Warn("cart retry budget exhausted", zap.String("user_id", userID), zap.Int("attempts", s.maxRetries))
	return nil, ErrConcurrentModification
}

// cached serves the display copy of the cart. Concurrent misses for one user share a
// single load that runs detached from any one caller, so a caller giving up does not fail the others.
func (s *Service) cached(ctx context.Context, userID string) (*Cart, error) {
	if s.cache == nil {
		return s.repo.Get(ctx, userID)
	}

	ch := s.sfg.DoChan(userID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheFillTimeout)
		defer cancel()
		return s.fill(loadCtx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Cart).Clone(), nil
	}
}

func (s *Service) fill(ctx context.Context, userID string) (*Cart, error) {
	c, generation, err := s.cache.Get(ctx, userID)
	if err == nil {
		return c, nil
	}
	cacheUp := errors.Is(err, ErrCacheMiss)
	if !cacheUp {
		s.logger.Warn("cache get error", zap.String("user_id", userID), zap.Error(err))
	}

	c, err = s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cacheUp {
		if err := s.cache.Fill(ctx, c, generation); err != nil {
			s.logger.Warn("cache fill error", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return c, nil
}

func (s *Service) invalidate(userID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, userID, eventType string, data any) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Append(ctx, GetCartID(userID), AggregateType, eventType, data); err != nil {
		s.logger.Warn("failed to journal event",
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
