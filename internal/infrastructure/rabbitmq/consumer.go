package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler processes one delivery; key carries the aggregate id.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer reads the queue on a dedicated channel with manual acks.
type Consumer struct {
	open      ChannelOpener
	queueName string
	logger    *zap.Logger
}

func NewConsumer(conn *amqp.Connection, queueName string, logger *zap.Logger) *Consumer {
	return newConsumer(connOpener(conn), queueName, logger)
}

func newConsumer(open ChannelOpener, queueName string, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{open: open, queueName: queueName, logger: logger.Named("rabbitmq")}
}

// Consume acks a delivery once handled; failed deliveries are nacked without requeue.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	ch, err := c.open()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueue(ch, c.queueName); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := handler(ctx, []byte(d.MessageId), d.Body); err != nil {
				c.logger.Error("error handling message", zap.String("message_id", d.MessageId), zap.Error(err))
				if err := d.Nack(false, false); err != nil {
					c.logger.Warn("failed to nack message", zap.String("message_id", d.MessageId), zap.Error(err))
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				c.logger.Warn("failed to ack message", zap.String("message_id", d.MessageId), zap.Error(err))
			}
		}
	}
}
