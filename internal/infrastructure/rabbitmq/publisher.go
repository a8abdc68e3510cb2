package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"koru/internal/domain/ingest"
	"koru/internal/shared/logging"
)

// declareQueue declares the durable task queue. Safe to repeat.
func declareQueue(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return nil
}

// Publisher sends import tasks to the task queue as persistent JSON
// messages on the default exchange.
type Publisher struct {
	url    string
	queue  string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, queue string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, logger: logging.OrNop(logger).Named("amqp_publisher")}
}

// Dispatch publishes one task. A broken connection is re-dialled on the
// next call.
func (p *Publisher) Dispatch(ctx context.Context, task ingest.ImportAccountTask) error {
	msg, err := encodeTask(task)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	); err != nil {
		p.reset()
		return fmt.Errorf("failed to publish task for account %s: %w", task.AccountID, err)
	}
	return nil
}

// channel returns the open channel, dialling if needed. Caller holds mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareQueue(ch, p.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p.logger.Debug("connected to broker", zap.String("queue", p.queue))
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops the current connection. Caller holds mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
