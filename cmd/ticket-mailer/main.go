package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tunbebong-creator/music-space/internal/adapters/crdb"
	"github.com/tunbebong-creator/music-space/internal/adapters/mail"
	"github.com/tunbebong-creator/music-space/internal/adapters/rabbit"
	"github.com/tunbebong-creator/music-space/internal/config"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "music-space-ticket-mailer")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool, cfg.LockTimeout)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, rabbit.Exchange, rabbit.TicketQueue, []string{rabbit.TicketKey}, 4, logger)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	mailer := NewTicketMailer(mail.NewSMTPTransport(cfg.SMTP), repo, cfg.NotifyTimeout, logger)

	logger.Info("ticket mailer started")
	if err := consumer.Run(ctx, mailer.Handle); err != nil {
		logger.WithError(err).Error("consumer stopped")
	}
	logger.Info("Shutdown ticket mailer")
}

// SentMarker records a successful delivery on the booking.
type SentMarker interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type TicketMailer struct {
	transport ports.TicketTransport
	store     SentMarker
	timeout   time.Duration
	logger    observability.Logger
}

func NewTicketMailer(transport ports.TicketTransport, store SentMarker, timeout time.Duration, logger observability.Logger) *TicketMailer {
	return &TicketMailer{transport: transport, store: store, timeout: timeout, logger: logger}
}

// Handle delivers one queued ticket. Undecodable messages are dropped; SMTP
// failures are requeued.
func (m *TicketMailer) Handle(ctx context.Context, d amqp.Delivery) error {
	var ticket ports.Ticket
	if err := json.Unmarshal(d.Body, &ticket); err != nil {
		return rabbit.Permanent(err)
	}
	if ticket.To == "" {
		return rabbit.Permanent(errors.New("ticket has no recipient"))
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.transport.Deliver(ctx, ticket); err != nil {
		observability.NotificationsTotal.WithLabelValues(observability.ResultDeliverErr).Inc()
		return err
	}
	observability.NotificationsTotal.WithLabelValues(observability.ResultOK).Inc()

	if err := m.store.MarkSent(ctx, ticket.BookingID, time.Now()); err != nil {
		m.logger.WithError(err).WithField("booking_id", ticket.BookingID).Warn("mark ticket sent")
	}
	return nil
}
