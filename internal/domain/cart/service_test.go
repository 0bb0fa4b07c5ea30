package cart_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/example/ec-shop/internal/domain"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/infrastructure/memory"
	"github.com/example/ec-shop/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	carts    *memory.CartRepository
	products *memory.ProductRepository
	journal  *mocks.MockJournal
	svc      *cart.Service
}

func newFixture(t *testing.T, opts ...cart.Option) *fixture {
	t.Helper()
	f := &fixture{
		carts:    memory.NewCartRepository(),
		products: memory.NewProductRepository(),
		journal:  mocks.NewMockJournal(),
	}
	catalog := product.NewService(f.products, nil, nil)
	f.svc = cart.NewService(f.carts, catalog, f.journal, nil, opts...)
	return f
}

func (f *fixture) addProduct(t *testing.T, id string, price string) {
	t.Helper()
	require.NoError(t, f.products.Insert(context.Background(), &product.Product{
		ID:          id,
		Name:        "Product " + id,
		Description: "desc",
		Price:       decimal.RequireFromString(price),
		Stock:       10,
	}))
}

// alwaysConflict rejects every Save as if another writer always got there first.
type alwaysConflict struct {
	*memory.CartRepository
	saves int
	mu    sync.Mutex
}

func (r *alwaysConflict) Save(ctx context.Context, c *cart.Cart) error {
	r.mu.Lock()
	r.saves++
	r.mu.Unlock()
	return cart.ErrVersionConflict
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]*cart.Cart
	generations map[string]int64
	gets        int
	invalidates int
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*cart.Cart), generations: make(map[string]int64)}
}

func (c *fakeCache) Get(ctx context.Context, userID string) (*cart.Cart, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, 0, c.getErr
	}
	entry, ok := c.entries[userID]
	if !ok {
		return nil, c.generations[userID], cart.ErrCacheMiss
	}
	return entry.Clone(), c.generations[userID], nil
}

func (c *fakeCache) Fill(ctx context.Context, ct *cart.Cart, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[ct.UserID] == generation {
		c.entries[ct.UserID] = ct.Clone()
	}
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidates++
	c.generations[userID]++
	delete(c.entries, userID)
	return nil
}

func (c *fakeCache) has(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[userID]
	return ok
}

// pausingRepo blocks the next Get after it has read the store until release is closed.
type pausingRepo struct {
	*memory.CartRepository
	mu      sync.Mutex
	armed   bool
	loaded  chan struct{}
	release chan struct{}
	ctxErr  error
}

func newPausingRepo() *pausingRepo {
	return &pausingRepo{CartRepository: memory.NewCartRepository()}
}

func (r *pausingRepo) pauseNextGet() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
	r.loaded = make(chan struct{})
	r.release = make(chan struct{})
}

func (r *pausingRepo) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	c, err := r.CartRepository.Get(ctx, userID)

	r.mu.Lock()
	armed := r.armed
	r.armed = false
	r.mu.Unlock()
	if !armed {
		return c, err
	}

	close(r.loaded)
	<-r.release
	r.mu.Lock()
	r.ctxErr = ctx.Err()
	r.mu.Unlock()
	return c, err
}

// ============================================
// AddItem Tests
// ============================================

func TestService_AddItem_CreatesCart(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	c, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)
	assert.Equal(t, 2, c.Quantity("p1"))

	stored, err := f.carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []cart.LineItem{{ProductID: "p1", Quantity: 2}}, stored.Items)

	calls := f.journal.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, cart.GetCartID("user-1"), calls[0].AggregateID)
	assert.Equal(t, cart.EventItemAdded, calls[0].EventType)
}

func TestService_AddItem_MergesQuantity(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	f.addProduct(t, "p2", "5")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "user-1", "p2", 1)
	require.NoError(t, err)
	c, err := f.svc.AddItem(ctx, "user-1", "p1", 3)
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, 5, c.Quantity("p1"))
	assert.Equal(t, 1, c.Quantity("p2"))
	assert.Equal(t, "p1", c.Items[0].ProductID)
	assert.Equal(t, int64(3), c.Version)
}

func TestService_AddItem_Validation(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.svc.AddItem(ctx, "user-1", "", 1)
	assert.ErrorIs(t, err, cart.ErrInvalidProduct)

	_, err = f.svc.AddItem(ctx, "user-1", "p1", 0)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)

	_, err = f.svc.AddItem(ctx, "user-1", "p1", -3)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)

	_, err = f.svc.AddItem(ctx, "user-1", "unknown", 1)
	assert.ErrorIs(t, err, product.ErrProductNotFound)

	assert.Equal(t, 0, f.carts.Len())
	assert.Empty(t, f.journal.Calls())
}

func TestService_AddItem_QuantityBound(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", cart.MaxQuantity+1)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
	_, err = f.svc.AddItem(ctx, "user-1", "p1", math.MaxInt)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)

	_, err = f.svc.AddItem(ctx, "user-1", "p1", cart.MaxQuantity)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, "user-1", "p1", 2)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)

	stored, err := f.carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, cart.MaxQuantity, stored.Quantity("p1"))
	assert.Equal(t, int64(1), stored.Version)
	assert.Len(t, f.journal.Calls(), 1)
}

func TestService_AddItem_ConcurrentAddsAreNotLost(t *testing.T) {
	f := newFixture(t, cart.WithMaxRetries(50))
	f.addProduct(t, "p1", "1")
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.AddItem(ctx, "user-1", "p1", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := f.carts.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, workers, c.Quantity("p1"))
	assert.Equal(t, int64(workers), c.Version)
}

func TestService_AddItem_RetryBudgetExhausted(t *testing.T) {
	repo := &alwaysConflict{CartRepository: memory.NewCartRepository()}
	products := memory.NewProductRepository()
	require.NoError(t, products.Insert(context.Background(), &product.Product{ID: "p1", Name: "n", Description: "d"}))
	svc := cart.NewService(repo, product.NewService(products, nil, nil), nil, nil, cart.WithMaxRetries(3))

	_, err := svc.AddItem(context.Background(), "user-1", "p1", 1)
	assert.ErrorIs(t, err, cart.ErrConcurrentModification)
	assert.Equal(t, 3, repo.saves)
}

func TestService_AddItem_StoreError(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "1")
	f.carts.SaveErr = domain.ErrStoreUnavailable

	_, err := f.svc.AddItem(context.Background(), "user-1", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// ============================================
// RemoveItem Tests
// ============================================

func TestService_RemoveItem_Success(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	f.addProduct(t, "p2", "5")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "user-1", "p2", 1)
	require.NoError(t, err)

	c, err := f.svc.RemoveItem(ctx, "user-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []cart.LineItem{{ProductID: "p2", Quantity: 1}}, c.Items)
	assert.Contains(t, f.journal.EventTypes(), cart.EventItemRemoved)
}

func TestService_RemoveItem_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)

	_, err = f.svc.RemoveItem(ctx, "user-1", "p1")
	require.NoError(t, err)
	c, err := f.svc.RemoveItem(ctx, "user-1", "p1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	// the second removal did not write
	assert.Equal(t, int64(2), c.Version)
}

func TestService_RemoveItem_NoCart(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.RemoveItem(context.Background(), "user-1", "p1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, f.carts.Len())
	assert.Empty(t, f.journal.Calls())
}

// ============================================
// GetCart Tests
// ============================================

func TestService_GetCart_Empty(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.GetCart(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", view.UserID)
	assert.NotNil(t, view.Items)
	assert.Empty(t, view.Items)
	assert.Nil(t, view.UpdatedAt)
}

func TestService_GetCart_ResolvesProducts(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	f.addProduct(t, "p2", "5")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, "user-1", "p2", 1)
	require.NoError(t, err)
	require.NoError(t, f.products.Delete(ctx, "p2"))

	view, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	require.NotNil(t, view.Items[0].Product)
	assert.Equal(t, "Product p1", view.Items[0].Product.Name)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.Nil(t, view.Items[1].Product)
	assert.NotNil(t, view.UpdatedAt)
}

func TestService_GetCart_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCart(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestService_GetCart_UsesCache(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, cart.WithCache(cache))
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)

	_, err = f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, cache.has("user-1"))

	// a cached copy is served even when the store is down
	f.carts.GetErr = domain.ErrStoreUnavailable
	view, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Items[0].Quantity)
}

func TestService_GetCart_CacheInvalidatedOnWrite(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, cart.WithCache(cache))
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	_, err = f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, "user-1", "p1", 1)
	require.NoError(t, err)
	assert.False(t, cache.has("user-1"))

	view, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, view.Items[0].Quantity)
}

func TestService_GetCart_ReadRacingCheckoutDoesNotRecache(t *testing.T) {
	repo := newPausingRepo()
	products := memory.NewProductRepository()
	require.NoError(t, products.Insert(context.Background(), &product.Product{ID: "p1", Name: "n", Description: "d", Price: decimal.NewFromInt(20)}))
	cache := newFakeCache()
	svc := cart.NewService(repo, product.NewService(products, nil, nil), nil, nil, cart.WithCache(cache))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "p1", 1)
	require.NoError(t, err)

	// the reader loads the cart, then stalls before filling the cache
	repo.pauseNextGet()
	done := make(chan error, 1)
	go func() {
		_, err := svc.GetCart(ctx, "user-1")
		done <- err
	}()
	<-repo.loaded

	claimed, err := svc.Load(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.Claim(ctx, claimed))

	close(repo.release)
	require.NoError(t, <-done)

	assert.False(t, cache.has("user-1"))
	view, err := svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestService_GetCart_CallerCancelDoesNotFailSharedLoad(t *testing.T) {
	repo := newPausingRepo()
	products := memory.NewProductRepository()
	require.NoError(t, products.Insert(context.Background(), &product.Product{ID: "p1", Name: "n", Description: "d", Price: decimal.NewFromInt(20)}))
	svc := cart.NewService(repo, product.NewService(products, nil, nil), nil, nil, cart.WithCache(newFakeCache()))

	_, err := svc.AddItem(context.Background(), "user-1", "p1", 3)
	require.NoError(t, err)

	repo.pauseNextGet()
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.GetCart(ctx, "user-1")
		first <- err
	}()
	<-repo.loaded

	second := make(chan *cart.View, 1)
	go func() {
		view, err := svc.GetCart(context.Background(), "user-1")
		assert.NoError(t, err)
		second <- view
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(repo.release)
	view := <-second
	require.NotNil(t, view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.NoError(t, repo.ctxErr)
}

func TestService_GetCart_CacheErrorFallsBackToStore(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	f := newFixture(t, cart.WithCache(cache))
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 4)
	require.NoError(t, err)

	view, err := f.svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, view.Items[0].Quantity)
}

// ============================================
// Claim / Restore Tests
// ============================================

func TestService_Claim_Success(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)

	c, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Claim(ctx, c))

	_, err = f.svc.Load(ctx, "user-1")
	assert.ErrorIs(t, err, cart.ErrCartNotFound)
	assert.Contains(t, f.journal.EventTypes(), cart.EventCartCheckedOut)
}

func TestService_Claim_StaleVersion(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	stale, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, "user-1", "p1", 1)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Claim(ctx, stale), cart.ErrVersionConflict)

	current, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, current.Quantity("p1"))
}

func TestService_Claim_AlreadyClaimed(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	c, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Claim(ctx, c))
	assert.ErrorIs(t, f.svc.Claim(ctx, c), cart.ErrCartNotFound)
}

func TestService_Restore_MergesIntoNewCart(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	f.addProduct(t, "p2", "5")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	claimed, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Claim(ctx, claimed))

	// the user kept shopping after the claim
	_, err = f.svc.AddItem(ctx, "user-1", "p2", 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Restore(ctx, claimed))

	c, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Quantity("p1"))
	assert.Equal(t, 1, c.Quantity("p2"))
	assert.Contains(t, f.journal.EventTypes(), cart.EventCartRestored)
}

func TestService_Restore_CapsAtMaxQuantity(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "1")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 10)
	require.NoError(t, err)
	claimed, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Claim(ctx, claimed))

	_, err = f.svc.AddItem(ctx, "user-1", "p1", cart.MaxQuantity-5)
	require.NoError(t, err)

	require.NoError(t, f.svc.Restore(ctx, claimed))

	c, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, cart.MaxQuantity, c.Quantity("p1"))
}

func TestService_Restore_Failure(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "user-1", "p1", 2)
	require.NoError(t, err)
	claimed, err := f.svc.Load(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Claim(ctx, claimed))

	f.carts.SaveErr = domain.ErrStoreUnavailable
	err = f.svc.Restore(ctx, claimed)
	assert.ErrorIs(t, err, cart.ErrCartRestoreFailed)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

// ============================================
// Journal Tests
// ============================================

func TestService_JournalFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", "20")
	f.journal.AppendErr = errors.New("journal down")

	c, err := f.svc.AddItem(context.Background(), "user-1", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Quantity("p1"))
}
