package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/kafka"
	mongostore "github.com/example/ec-shop/internal/infrastructure/mongo"
	"github.com/example/ec-shop/internal/infrastructure/rabbitmq"
	"github.com/example/ec-shop/internal/logging"
	"github.com/example/ec-shop/internal/notification"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadWorker()
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

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("notifier stopped", zap.Error(err))
	}
	logger.Info("notifier stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.StoreBackend != config.StoreMongo {
		return fmt.Errorf("notifier needs STORE_BACKEND=%s to look up customers", config.StoreMongo)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := mongostore.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	users := user.NewService(mongostore.NewUserRepository(db), nil, nil, logger)
	sender := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, logger)
	handler := notification.NewHandler(users, sender, logger)

	logger.Info("notifier started",
		zap.String("broker", cfg.Broker),
		zap.String("smtp_host", cfg.SMTPHost),
		zap.Int("smtp_port", cfg.SMTPPort))

	switch cfg.Broker {
	case config.BrokerKafka:
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, logger)
		defer consumer.Close()
		return consumer.Consume(ctx, handler.HandleEvent)

	case config.BrokerRabbitMQ:
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer conn.Close()
		return rabbitmq.NewConsumer(conn, cfg.RabbitMQQueue, logger).Consume(ctx, handler.HandleEvent)
	}
	return fmt.Errorf("BROKER=%s has nothing to consume; use kafka or rabbitmq", cfg.Broker)
}
