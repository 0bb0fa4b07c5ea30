package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/example/ec-shop/internal/domain/product"
)

const AggregateType = "Cart"

// MaxQuantity bounds the quantity of a single line.
const MaxQuantity = math.MaxInt32

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", MaxQuantity)
	ErrInvalidProduct  = errors.New("product id is required")

	// ErrVersionConflict is returned by a Repository when the stored version moved past the caller's.
	ErrVersionConflict = errors.New("cart version conflict")

	// ErrConcurrentModification is returned when the retry budget runs out under contention.
	ErrConcurrentModification = errors.New("cart is being modified concurrently")

	ErrCartRestoreFailed = errors.New("failed to restore cart after checkout failure")

	// ErrCacheMiss is returned by a Cache that holds no entry for the user.
	ErrCacheMiss = errors.New("cart cache miss")
)

// GetCartID returns the aggregate id used when journaling cart events
func GetCartID(userID string) string {
	return "cart-" + userID
}

type LineItem struct {
	ProductID string `json:"productId" bson:"product_id"`
	Quantity  int    `json:"quantity" bson:"quantity"`
}

// Cart is the per-user document. Version is 0 until the first successful Save.
type Cart struct {
	UserID    string     `json:"userId"`
	Items     []LineItem `json:"items"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func newCart(userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{UserID: userID, Items: []LineItem{}, CreatedAt: now, UpdatedAt: now}
}

// add merges quantity into an existing line for productID or appends a new line and returns
// the resulting quantity of that line. A merge that would pass MaxQuantity leaves c unchanged.
func (c *Cart) add(productID string, quantity int) (int, error) {
	if quantity <= 0 || quantity > MaxQuantity {
		return 0, ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ProductID != productID {
			continue
		}
		if c.Items[i].Quantity > MaxQuantity-quantity {
			return 0, ErrInvalidQuantity
		}
		c.Items[i].Quantity += quantity
		return c.Items[i].Quantity, nil
	}
	c.Items = append(c.Items, LineItem{ProductID: productID, Quantity: quantity})
	return quantity, nil
}

// merge adds quantity like add but caps the line at MaxQuantity. It reports whether it capped.
func (c *Cart) merge(productID string, quantity int) bool {
	if quantity <= 0 {
		return false
	}
	if _, err := c.add(productID, quantity); err == nil {
		return false
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = MaxQuantity
			return true
		}
	}
	c.Items = append(c.Items, LineItem{ProductID: productID, Quantity: MaxQuantity})
	return true
}

func (c *Cart) remove(productID string) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Quantity returns the quantity held for productID, 0 when absent.
func (c *Cart) Quantity(productID string) int {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]LineItem(nil), c.Items...)
	return &cp
}

// Repository stores carts with compare-and-set on Version.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	// Save persists c only if the stored version equals c.Version (0 means the cart must not exist yet),
	// then increments c.Version. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, c *Cart) error
	// DeleteVersion removes the cart only if its stored version equals version.
	DeleteVersion(ctx context.Context, userID string, version int64) error
}

// Cache holds recently read carts for display. Each user has a generation that
// Invalidate advances; a fill tagged with an older generation is dropped, so a read
// that raced a write cannot put the pre-write cart back.
type Cache interface {
	// Get returns the cached cart, or ErrCacheMiss, together with the user's current generation.
	Get(ctx context.Context, userID string) (*Cart, int64, error)
	// Fill stores c only while the user's generation is still generation.
	Fill(ctx context.Context, c *Cart, generation int64) error
	// Invalidate drops the entry and advances the generation.
	Invalidate(ctx context.Context, userID string) error
}

// Catalog is the read-only product lookup the cart depends on.
type Catalog interface {
	FindByID(ctx context.Context, id string) (*product.Product, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error)
}

// ResolvedItem is a line item joined with the current catalog entry.
// Product is nil when the product has since been removed from the catalog.
type ResolvedItem struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Product   *product.Product `json:"product"`
}

// View is the display form of a cart. It is never persisted.
type View struct {
	UserID    string         `json:"userId"`
	Items     []ResolvedItem `json:"items"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}
