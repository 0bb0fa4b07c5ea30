package mongostore

import (
	"fmt"
	"time"

	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/payment"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money is stored as Decimal128 so amounts never pass through float64.

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %s: %w", v, err)
	}
	return d, nil
}

type productDocument struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Description string               `bson:"description"`
	Price       primitive.Decimal128 `bson:"price"`
	Stock       int                  `bson:"stock"`
	Image       string               `bson:"image,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

func newProductDocument(p *product.Product) (*productDocument, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return nil, err
	}
	return &productDocument{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       price,
		Stock:       p.Stock,
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func (d *productDocument) toDomain() (*product.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	return &product.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Price:       price,
		Stock:       d.Stock,
		Image:       d.Image,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type cartDocument struct {
	UserID    string          `bson:"user_id"`
	Items     []cart.LineItem `bson:"items"`
	Version   int64           `bson:"version"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

func newCartDocument(c *cart.Cart, version int64) *cartDocument {
	items := c.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	return &cartDocument{
		UserID:    c.UserID,
		Items:     items,
		Version:   version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (d *cartDocument) toDomain() *cart.Cart {
	items := d.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	return &cart.Cart{
		UserID:    d.UserID,
		Items:     items,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type orderItemDocument struct {
	ProductID string               `bson:"product_id"`
	Quantity  int                  `bson:"quantity"`
	Name      string               `bson:"name"`
	Price     primitive.Decimal128 `bson:"price"`
	Image     string               `bson:"image,omitempty"`
}

type orderDocument struct {
	ID             string               `bson:"_id"`
	UserID         string               `bson:"user_id"`
	Items          []orderItemDocument  `bson:"items"`
	Total          primitive.Decimal128 `bson:"total"`
	IdempotencyKey string               `bson:"idempotency_key,omitempty"`
	CreatedAt      time.Time            `bson:"created_at"`
}

func newOrderDocument(o *order.Order) (*orderDocument, error) {
	total, err := toDecimal128(o.Total)
	if err != nil {
		return nil, err
	}
	items := make([]orderItemDocument, len(o.Items))
	for i, item := range o.Items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return nil, err
		}
		items[i] = orderItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Name:      item.Name,
			Price:     price,
			Image:     item.Image,
		}
	}
	return &orderDocument{
		ID:             o.ID,
		UserID:         o.UserID,
		Items:          items,
		Total:          total,
		IdempotencyKey: o.IdempotencyKey,
		CreatedAt:      o.CreatedAt,
	}, nil
}

func (d *orderDocument) toDomain() (*order.Order, error) {
	total, err := fromDecimal128(d.Total)
	if err != nil {
		return nil, err
	}
	items := make([]order.Item, len(d.Items))
	for i, item := range d.Items {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return nil, err
		}
		items[i] = order.Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Name:      item.Name,
			Price:     price,
			Image:     item.Image,
		}
	}
	return &order.Order{
		ID:             d.ID,
		UserID:         d.UserID,
		Items:          items,
		Total:          total,
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      d.CreatedAt,
	}, nil
}

type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Name         string    `bson:"name,omitempty"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
}

func newUserDocument(u *user.User) *userDocument {
	return &userDocument{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         u.Role.String(),
		CreatedAt:    u.CreatedAt,
	}
}

func (d *userDocument) toDomain() (*user.User, error) {
	role, err := auth.ParseRole(d.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", d.ID, err)
	}
	return &user.User{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		Role:         role,
		CreatedAt:    d.CreatedAt,
	}, nil
}

type sessionDocument struct {
	ID               string     `bson:"_id"`
	UserID           string     `bson:"user_id"`
	RefreshTokenHash string     `bson:"refresh_token_hash"`
	IPAddress        string     `bson:"ip_address"`
	UserAgent        string     `bson:"user_agent,omitempty"`
	LoginTime        time.Time  `bson:"login_time"`
	LogoutTime       *time.Time `bson:"logout_time,omitempty"`
	ExpiresAt        time.Time  `bson:"expires_at"`
}

func newSessionDocument(s *user.Session) *sessionDocument {
	return &sessionDocument{
		ID:               s.ID,
		UserID:           s.UserID,
		RefreshTokenHash: s.RefreshTokenHash,
		IPAddress:        s.IPAddress,
		UserAgent:        s.UserAgent,
		LoginTime:        s.LoginTime,
		LogoutTime:       s.LogoutTime,
		ExpiresAt:        s.ExpiresAt,
	}
}

func (d *sessionDocument) toDomain() *user.Session {
	return &user.Session{
		ID:               d.ID,
		UserID:           d.UserID,
		RefreshTokenHash: d.RefreshTokenHash,
		IPAddress:        d.IPAddress,
		UserAgent:        d.UserAgent,
		LoginTime:        d.LoginTime,
		LogoutTime:       d.LogoutTime,
		ExpiresAt:        d.ExpiresAt,
	}
}

type paymentDocument struct {
	ID            string               `bson:"_id"`
	UserID        string               `bson:"user_id"`
	OrderID       string               `bson:"order_id"`
	Name          string               `bson:"name"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Currency      string               `bson:"currency"`
	Transaction   string               `bson:"transaction"`
	Status        string               `bson:"status"`
	SessionID     string               `bson:"session_id"`
	PaymentMethod string               `bson:"payment_method"`
	CreatedAt     time.Time            `bson:"created_at"`
}

func newPaymentDocument(p *payment.Payment) (*paymentDocument, error) {
	amount, err := toDecimal128(p.Amount)
	if err != nil {
		return nil, err
	}
	return &paymentDocument{
		ID:            p.ID,
		UserID:        p.UserID,
		OrderID:       p.OrderID,
		Name:          p.Name,
		Amount:        amount,
		Currency:      p.Currency,
		Transaction:   p.Transaction,
		Status:        p.Status,
		SessionID:     p.SessionID,
		PaymentMethod: p.PaymentMethod,
		CreatedAt:     p.CreatedAt,
	}, nil
}

func (d *paymentDocument) toDomain() (*payment.Payment, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, err
	}
	return &payment.Payment{
		ID:            d.ID,
		UserID:        d.UserID,
		OrderID:       d.OrderID,
		Name:          d.Name,
		Amount:        amount,
		Currency:      d.Currency,
		Transaction:   d.Transaction,
		Status:        d.Status,
		SessionID:     d.SessionID,
		PaymentMethod: d.PaymentMethod,
		CreatedAt:     d.CreatedAt,
	}, nil
}
