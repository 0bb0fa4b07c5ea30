package api

import (
	"context"
	"net/http"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/payment"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader lets a client retry POST /order without placing a second order.
const IdempotencyKeyHeader = "Idempotency-Key"

type CartService interface {
	AddItem(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error)
	GetCart(ctx context.Context, userID string) (*cart.View, error)
}

type OrderService interface {
	PlaceOrder(ctx context.Context, userID, idempotencyKey string) (*order.Order, error)
	ListOrders(ctx context.Context, userID string) ([]order.View, error)
	Get(ctx context.Context, userID, orderID string) (*order.Order, error)
}

type ProductService interface {
	Create(ctx context.Context, in product.Input) (*product.Product, error)
	Update(ctx context.Context, id string, in product.Input) (*product.Product, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*product.Product, error)
	List(ctx context.Context) ([]*product.Product, error)
}

type PaymentService interface {
	CreatePayment(ctx context.Context, userID, orderID, name string) (*payment.Payment, *payment.Session, error)
}

type Handlers struct {
	carts    CartService
	orders   OrderService
	products ProductService
	payments PaymentService
	logger   *zap.Logger
}

func NewHandlers(carts CartService, orders OrderService, products ProductService, payments PaymentService, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		carts:    carts,
		orders:   orders,
		products: products,
		payments: payments,
		logger:   logger.Named("api"),
	}
}

// Product Handlers

type productRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	Image       string          `json:"image"`
}

func (req productRequest) input() product.Input {
	return product.Input{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Image:       req.Image,
	}
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.products.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if products == nil {
		products = []*product.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.FindByID(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.products.Update(r.Context(), chi.URLParam(r, "productId"), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "productId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// Cart Handlers

type addToCartRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=2147483647"`
}

type cartResponse struct {
	Message string     `json:"message"`
	Cart    *cart.Cart `json:"cart"`
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.carts.AddItem(r.Context(), middleware.GetUserID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{Message: "Item added to cart", Cart: c})
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{Message: "Item removed from cart", Cart: c})
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.GetCart(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Order Handlers

type orderResponse struct {
	Message string       `json:"message"`
	Order   *order.Order `json:"order"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(IdempotencyKeyHeader)
	if len(key) > 255 {
		respondError(w, http.StatusBadRequest, CodeInvalidInput, "Idempotency-Key must be at most 255 characters")
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), middleware.GetUserID(r.Context()), key)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderResponse{Message: "Order placed successfully", Order: o})
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if orders == nil {
		orders = []order.View{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Payment Handlers

type createPaymentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Name    string `json:"name"`
}

type createPaymentResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	PaymentID string `json:"paymentId"`
}

func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, session, err := h.payments.CreatePayment(r.Context(), middleware.GetUserID(r.Context()), req.OrderID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, createPaymentResponse{ID: session.ID, URL: session.URL, PaymentID: p.ID})
}
