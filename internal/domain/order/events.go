package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "OrderPlaced"

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlaced struct {
	OrderID  string          `json:"order_id"`
	UserID   string          `json:"user_id"`
	Items    []OrderItem     `json:"items"`
	Total    decimal.Decimal `json:"total"`
	PlacedAt time.Time       `json:"placed_at"`
}

func newOrderPlaced(o *Order) OrderPlaced {
	items := make([]OrderItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}
	return OrderPlaced{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Items:    items,
		Total:    o.Total,
		PlacedAt: o.CreatedAt,
	}
}
