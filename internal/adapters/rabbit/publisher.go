package rabbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

const (
	Exchange       = "ms.events"
	TicketKey      = "ticket.send"
	TicketQueue    = "ms.tickets"
	publishRetries = 3
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch       Channel
	exchange string
	backoff  time.Duration
}

// NewPublisher opens a channel on conn and declares the durable topic
// exchange.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}
	return NewChannelPublisher(ch, exchange), nil
}

func NewChannelPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, backoff: 200 * time.Millisecond}
}

// BindQueue declares queue on the publisher's channel and binds it to the
// publisher's exchange.
func (p *Publisher) BindQueue(queue string, keys ...string) error {
	t, ok := p.ch.(Topology)
	if !ok {
		return errors.New("channel cannot declare queues")
	}
	_, err := BindQueue(t, p.exchange, queue, keys...)
	return err
}

// Publish sends msg with routing key, retrying transient failures with a
// linear backoff.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.backoff):
			}
		}
		if err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err == nil {
			return nil
		}
	}
	return errors.Wrapf(err, "publish %s", key)
}

// TicketPublisher hands rendered tickets to the ticket-mailer worker, which
// sends them and records sent_at.
type TicketPublisher struct {
	pub *Publisher
}

// NewTicketPublisher declares the ticket queue so tickets published before
// the mailer first connects are not dropped by the broker.
func NewTicketPublisher(pub *Publisher) (*TicketPublisher, error) {
	if err := pub.BindQueue(TicketQueue, TicketKey); err != nil {
		return nil, err
	}
	return &TicketPublisher{pub: pub}, nil
}

var (
	_ ports.TicketTransport = (*TicketPublisher)(nil)
	_ ports.QueuedTransport = (*TicketPublisher)(nil)
)

// Queued reports that Deliver only enqueues the ticket.
func (t *TicketPublisher) Queued() bool { return true }

func (t *TicketPublisher) Deliver(ctx context.Context, ticket ports.Ticket) error {
	body, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return t.pub.Publish(ctx, TicketKey, amqp.Publishing{
		MessageId:    uuid.NewString(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}
