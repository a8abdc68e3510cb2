package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"koru/internal/domain/ingest"
	"koru/internal/shared/logging"
)

// Submitter takes a decoded task. An error means the worker cannot take
// the task right now and the message goes back to the queue.
type Submitter func(task ingest.ImportAccountTask) error

// ConsumerConfig configures NewConsumer.
type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// Consumer feeds tasks from the queue into a Submitter. Messages are acked
// once the submitter accepts them.
type Consumer struct {
	cfg          ConsumerConfig
	submit       Submitter
	logger       *zap.Logger
	requeueDelay time.Duration
}

func NewConsumer(cfg ConsumerConfig, submit Submitter, logger *zap.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	return &Consumer{
		cfg:          cfg,
		submit:       submit,
		logger:       logging.OrNop(logger).Named("amqp_consumer"),
		requeueDelay: 500 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff when the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn("consume loop ended, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	if err := declareQueue(ch, c.cfg.Queue); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("consuming import tasks", zap.String("queue", c.cfg.Queue), zap.Int("prefetch", c.cfg.Prefetch))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	task, err := decodeTask(d.Body)
	if err != nil {
		// Malformed messages would loop forever if requeued.
		c.logger.Error("dropping malformed task", zap.Error(err), zap.ByteString("body", d.Body))
		_ = d.Nack(false, false)
		return
	}

	if err := c.submit(task); err != nil {
		c.logger.Warn("worker busy, requeueing task",
			zap.String("account_id", task.AccountID),
			zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(c.requeueDelay):
		}
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}
