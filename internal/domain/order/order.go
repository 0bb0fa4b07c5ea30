package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/shopspring/decimal"
)

const AggregateType = "Order"

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrOrderPersistenceFailed = errors.New("failed to persist order")
	ErrOrderNotFound          = errors.New("order not found")

	// ErrDuplicateIdempotencyKey is returned by a Repository when the user already has an order under the key.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

	// ErrIdempotencyInProgress is returned while another request with the same key is being placed.
	ErrIdempotencyInProgress = errors.New("an order with this idempotency key is in progress")
)

// Item is a line copied from the catalog at placement time. It never changes afterwards.
type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is immutable once created.
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Items          []Item          `json:"items"`
	Total          decimal.Decimal `json:"total"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Total sums price times quantity over items.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// snapshot copies the current catalog detail of every line item.
// A line whose product left the catalog fails the whole snapshot.
func snapshot(c *cart.Cart, products map[string]*product.Product) ([]Item, error) {
	items := make([]Item, 0, len(c.Items))
	for _, line := range c.Items {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", product.ErrProductNotFound, line.ProductID)
		}
		items = append(items, Item{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
		})
	}
	return items, nil
}

// Repository stores orders. There is no update or delete.
type Repository interface {
	// Create inserts o. A second order for the same user and non-empty idempotency key fails with ErrDuplicateIdempotencyKey.
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
}

// Carts is the part of the cart manager that checkout drives.
type Carts interface {
	Load(ctx context.Context, userID string) (*cart.Cart, error)
	Claim(ctx context.Context, c *cart.Cart) error
	Restore(ctx context.Context, claimed *cart.Cart) error
}

// Catalog resolves products in bulk.
type Catalog interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]*product.Product, error)
}

// Guard serializes concurrent requests that share an idempotency key.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// ItemView pairs a stored snapshot line with the product as it is now.
type ItemView struct {
	Item
	Product *product.Product `json:"product"`
}

// View is the display form of an order; the snapshot fields are never rewritten from Product.
type View struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Items     []ItemView      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}
