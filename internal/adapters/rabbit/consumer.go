package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tunbebong-creator/music-space/internal/observability"
)

// ErrPermanent marks handler errors that retrying cannot fix. Such messages
// are dropped instead of requeued.
var ErrPermanent = errors.New("permanent message error")

func Permanent(err error) error {
	return errors.Mark(err, ErrPermanent)
}

type Handler func(ctx context.Context, d amqp.Delivery) error

// Topology is the part of *amqp.Channel that declares queues and bindings.
type Topology interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// BindQueue declares the durable queue and binds it to exchange for each key.
// Both the producer and the consumer side call it, so messages published
// before the consumer starts are kept.
func BindQueue(t Topology, exchange, queue string, keys ...string) (string, error) {
	q, err := t.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return "", errors.Wrap(err, "declare queue")
	}
	for _, key := range keys {
		if err := t.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return "", errors.Wrapf(err, "bind %s", key)
		}
	}
	return q.Name, nil
}

type Consumer struct {
	ch     *amqp.Channel
	queue  string
	logger observability.Logger
}

// NewConsumer declares the exchange and a durable queue bound to keys.
func NewConsumer(conn *amqp.Connection, exchange, queue string, keys []string, prefetch int, logger observability.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	fail := func(err error, msg string) (*Consumer, error) {
		_ = ch.Close()
		return nil, errors.Wrap(err, msg)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(err, "declare exchange")
	}
	name, err := BindQueue(ch, exchange, queue, keys...)
	if err != nil {
		return fail(err, "bind queue")
	}
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail(err, "set qos")
	}
	return &Consumer{ch: ch, queue: name, logger: logger}, nil
}

func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}
	return Process(ctx, msgs, handle, c.logger)
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}

// Process acks each delivery the handler accepts. Failed deliveries are
// requeued unless the error is marked permanent.
func Process(ctx context.Context, msgs <-chan amqp.Delivery, handle Handler, logger observability.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			err := handle(ctx, d)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, ErrPermanent):
				logger.WithError(err).WithField("message_id", d.MessageId).Error("dropping message")
				_ = d.Nack(false, false)
			default:
				logger.WithError(err).WithField("message_id", d.MessageId).Warn("requeueing message")
				_ = d.Nack(false, true)
			}
		}
	}
}
