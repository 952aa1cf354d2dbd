// Package outbox relays booking domain events from the outbox table to the
// message broker.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tunbebong-creator/music-space/internal/adapters/crdb"
	"github.com/tunbebong-creator/music-space/internal/observability"
)

const (
	DefaultBatchSize = 50
	DefaultInterval  = 2 * time.Second
)

// Source yields outbox batches. *crdb.Repository satisfies it.
type Source interface {
	RelayOutbox(ctx context.Context, limit int, publish func(ctx context.Context, rec crdb.OutboxRecord) error) (crdb.RelayResult, error)
}

// Broker publishes a message under a routing key. *rabbit.Publisher
// satisfies it.
type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	source    Source
	broker    Broker
	logger    observability.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewPublisher(source Source, broker Broker, logger observability.Logger) *Publisher {
	return &Publisher{
		source:    source,
		broker:    broker,
		logger:    logger,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
}

func (p *Publisher) WithInterval(d time.Duration) *Publisher {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("outbox publisher started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RelayOnce(ctx); err != nil {
				p.logger.WithError(err).Warn("outbox relay failed")
			}
		}
	}
}

// RelayOnce publishes one batch. Full batches are followed immediately by the
// next one so a backlog drains without waiting for the ticker.
func (p *Publisher) RelayOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		res, err := p.source.RelayOutbox(ctx, p.batchSize, p.publish)
		if err != nil {
			return total, err
		}
		total += res.Published
		if res.Oldest.IsZero() {
			observability.OutboxLag.Set(0)
		} else {
			observability.OutboxLag.Set(p.now().Sub(res.Oldest).Seconds())
		}
		if res.Failed > 0 {
			p.logger.WithField("failed", res.Failed).Warn("outbox records left for retry")
		}
		if res.Published+res.Failed < p.batchSize || res.Published == 0 {
			return total, nil
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec crdb.OutboxRecord) error {
	return p.broker.Publish(ctx, rec.EventType, amqp.Publishing{
		MessageId:    rec.DedupeKey,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.CreatedAt,
		Type:         rec.EventType,
		Body:         rec.Payload,
	})
}
