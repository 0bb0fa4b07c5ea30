package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/ec-shop/internal/api"
	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/payment"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/infrastructure/kafka"
	"github.com/example/ec-shop/internal/infrastructure/memory"
	mongostore "github.com/example/ec-shop/internal/infrastructure/mongo"
	"github.com/example/ec-shop/internal/infrastructure/rabbitmq"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type repositories struct {
	products product.Repository
	carts    cart.Repository
	orders   order.Repository
	users    user.Repository
	sessions user.SessionRepository
	payments payment.Repository
	health   []api.HealthCheck
	close    func()
}

func newRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repositories, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using the in-memory store, data is lost on restart")
		users := memory.NewUserRepository()
		return &repositories{
			products: memory.NewProductRepository(),
			carts:    memory.NewCartRepository(),
			orders:   memory.NewOrderRepository(),
			users:    users,
			sessions: users,
			payments: memory.NewPaymentRepository(),
			close:    func() {},
		}, nil

	case config.StoreMongo:
		db, err := mongostore.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoTimeout)
		if err != nil {
			return nil, err
		}
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, err
		}
		logger.Info("connected to mongodb", zap.String("database", cfg.MongoDB))

		users := mongostore.NewUserRepository(db)
		return &repositories{
			products: mongostore.NewProductRepository(db),
			carts:    mongostore.NewCartRepository(db),
			orders:   mongostore.NewOrderRepository(db),
			users:    users,
			sessions: users,
			payments: mongostore.NewPaymentRepository(db),
			health: []api.HealthCheck{{Name: "mongo", Check: func(ctx context.Context) error {
				return db.Client().Ping(ctx, readpref.Primary())
			}}},
			close: func() { _ = db.Client().Disconnect(context.Background()) },
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// newPublisher returns a nil Publisher when no broker is configured.
func newPublisher(cfg *config.Config, logger *zap.Logger) (store.Publisher, func(), error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return producer, func() { _ = producer.Close() }, nil

	case config.BrokerRabbitMQ:
		pool, err := rabbitmq.NewChannelPool(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.RabbitMQPoolSize)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("publishing to rabbitmq", zap.String("queue", cfg.RabbitMQQueue), zap.Int("channels", cfg.RabbitMQPoolSize))
		return rabbitmq.NewPublisher(pool, cfg.RabbitMQQueue), pool.Close, nil
	}
	return nil, func() {}, nil
}

func newJournal(ctx context.Context, cfg *config.Config, publisher store.Publisher, logger *zap.Logger) (store.Journal, []api.HealthCheck, func(), error) {
	switch cfg.JournalBackend {
	case config.JournalPostgres:
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.RunMigrations(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("journaling to postgres")
		check := api.HealthCheck{Name: "postgres", Check: db.PingContext}
		return store.NewPostgresEventStore(db, publisher), []api.HealthCheck{check}, func() { db.Close() }, nil

	case config.JournalDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		if publisher != nil {
			logger.Warn("BROKER is ignored with the dynamo journal, the table stream delivers events")
		}
		logger.Info("journaling to dynamodb", zap.String("table", cfg.DynamoEventsTable))
		return store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoEventsTable), nil, func() {}, nil
	}
	return store.NewEventStore(publisher), nil, func() {}, nil
}
