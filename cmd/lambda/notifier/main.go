package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/kinesis"
	mongostore "github.com/example/ec-shop/internal/infrastructure/mongo"
	"github.com/example/ec-shop/internal/logging"
	"github.com/example/ec-shop/internal/notification"
	"go.uber.org/zap"
)

// connections are built once per execution environment and reused across invocations.
var (
	handler *notification.Handler
	logger  *zap.Logger
)

func init() {
	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if logger, err = logging.New(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger = logger.Named("lambda")

	db, err := mongostore.ConnectMongoDB(context.Background(), cfg.MongoURI, cfg.MongoDB, cfg.MongoTimeout)
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}

	users := user.NewService(mongostore.NewUserRepository(db), nil, nil, logger)
	sender := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, logger)
	handler = notification.NewHandler(users, sender, logger)
	logger.Info("initialized", zap.String("smtp_host", cfg.SMTPHost))
}

func handle(ctx context.Context, batch events.KinesisEvent) (events.KinesisEventResponse, error) {
	resp := kinesis.Dispatch(ctx, batch, handler.HandleEvent, logger)
	logger.Info("batch processed",
		zap.Int("records", len(batch.Records)),
		zap.Int("failed", len(resp.BatchItemFailures)))
	return resp, nil
}

func main() {
	defer func() { _ = logger.Sync() }()
	lambda.Start(handle)
}
