package api

import (
	"net/http"
	"time"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Handlers       *Handlers
	AuthHandlers   *AuthHandlers
	Health         http.HandlerFunc
	JWTService     *auth.JWTService
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health)
	}

	h := cfg.Handlers
	a := cfg.AuthHandlers

	// Public
	r.Post("/register", a.Register)
	r.Post("/login", a.Login)
	r.Post("/refresh", a.Refresh)
	r.Get("/products", h.GetProducts)
	r.Get("/products/{productId}", h.GetProduct)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTService))

		r.Post("/logout", a.Logout)
		r.Get("/me", a.Me)
		r.Get("/sessions", a.Sessions)

		r.Get("/cart", h.GetCart)
		r.Post("/cart", h.AddToCart)
		r.Delete("/cart/{productId}", h.RemoveFromCart)

		r.Post("/order", h.PlaceOrder)
		r.Get("/orders", h.GetOrders)
		r.Get("/orders/{orderId}", h.GetOrder)

		r.Post("/create-payment", h.CreatePayment)

		// Catalog administration
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleAdmin))
			r.Post("/products", h.CreateProduct)
			r.Put("/products/{productId}", h.UpdateProduct)
			r.Delete("/products/{productId}", h.DeleteProduct)
		})
	})

	return r
}
