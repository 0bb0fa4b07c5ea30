package cart

import "time"

const (
	EventItemAdded      = "ItemAddedToCart"
	EventItemRemoved    = "ItemRemovedFromCart"
	EventCartCheckedOut = "CartCheckedOut"
	EventCartRestored   = "CartRestored"
)

type ItemAddedToCart struct {
	CartID      string    `json:"cart_id"`
	UserID      string    `json:"user_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	NewQuantity int       `json:"new_quantity"`
	AddedAt     time.Time `json:"added_at"`
}

type ItemRemovedFromCart struct {
	CartID    string    `json:"cart_id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	RemovedAt time.Time `json:"removed_at"`
}

// CartCheckedOut is emitted when checkout claims and deletes the cart.
type CartCheckedOut struct {
	CartID       string    `json:"cart_id"`
	UserID       string    `json:"user_id"`
	Version      int64     `json:"version"`
	CheckedOutAt time.Time `json:"checked_out_at"`
}

// CartRestored is emitted when a failed checkout puts the claimed items back.
type CartRestored struct {
	CartID     string    `json:"cart_id"`
	UserID     string    `json:"user_id"`
	Items      int       `json:"items"`
	RestoredAt time.Time `json:"restored_at"`
}
