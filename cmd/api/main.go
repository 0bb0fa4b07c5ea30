package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ec-shop/internal/api"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/payment"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/logging"
	rediscache "github.com/example/ec-shop/internal/infrastructure/redis"
	stripegw "github.com/example/ec-shop/internal/infrastructure/stripe"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	publisher, closePublisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closePublisher)

	journal, health, closeJournal, err := newJournal(ctx, cfg, publisher, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeJournal)

	repos, err := newRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, repos.close)
	health = append(health, repos.health...)

	var cartOpts []cart.Option
	var orderOpts []order.Option
	cartOpts = append(cartOpts, cart.WithMaxRetries(cfg.CartMaxRetries))
	if cfg.RedisAddr != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = client.Close() })
		cartOpts = append(cartOpts, cart.WithCache(rediscache.NewCartCache(client, cfg.CartCacheTTL)))
		orderOpts = append(orderOpts, order.WithGuard(rediscache.NewIdempotencyGuard(client, cfg.IdempotencyTTL)))
		health = append(health, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		logger.Info("redis enabled", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY is not set, payment sessions will fail")
	}

	productSvc := product.NewService(repos.products, journal, logger)
	cartSvc := cart.NewService(repos.carts, productSvc, journal, logger, cartOpts...)
	orderSvc := order.NewService(repos.orders, cartSvc, productSvc, journal, logger, orderOpts...)
	paymentSvc := payment.NewService(repos.payments, orderSvc, stripegw.NewStripeGateway(cfg.StripeSecretKey, logger), journal,
		payment.Config{SuccessURL: cfg.PaymentSuccessURL, CancelURL: cfg.PaymentCancelURL}, logger)
	userSvc := user.NewService(repos.users, repos.sessions, journal, logger)

	if cfg.AdminEmail != "" {
		admin, err := userSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		logger.Info("admin account ready", zap.String("user_id", admin.ID))
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	router := api.NewRouter(api.RouterConfig{
		Handlers:       api.NewHandlers(cartSvc, orderSvc, productSvc, paymentSvc, logger),
		AuthHandlers:   api.NewAuthHandlers(userSvc, jwtService, logger),
		Health:         api.Health(health...),
		JWTService:     jwtService,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "ec-shop-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreBackend),
			zap.String("journal", cfg.JournalBackend),
			zap.String("broker", cfg.Broker))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
