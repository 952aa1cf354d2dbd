// Package notify delivers booking tickets after the reservation has
// committed. Delivery runs on its own goroutine and deadline; its outcome is
// logged and never reported back to the reservation caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const defaultTimeout = 20 * time.Second

var tracer = otel.Tracer("notify")

// Store is the subset of the booking store the dispatcher reads and updates.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BookingView, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Dispatcher struct {
	store     Store
	transport ports.TicketTransport
	cache     ports.ViewCache
	auditor   ports.Auditor
	logger    observability.Logger
	timeout   time.Duration
	now       func() time.Time
	wg        sync.WaitGroup
}

type Option func(*Dispatcher)

func WithCache(c ports.ViewCache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

func WithAuditor(a ports.Auditor) Option {
	return func(d *Dispatcher) { d.auditor = a }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(store Store, transport ports.TicketTransport, logger observability.Logger, timeout time.Duration, opts ...Option) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &Dispatcher{
		store:     store,
		transport: transport,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch schedules delivery of the booking's ticket and returns at once.
func (d *Dispatcher) Dispatch(bookingID uuid.UUID) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.deliver(ctx, bookingID); err != nil {
			d.logger.WithError(err).WithField("booking_id", bookingID).Warn("ticket delivery failed")
		}
	}()
}

// SendTicket delivers the ticket synchronously. It is the operator resend
// path: unlike Dispatch, errors are returned to the caller.
func (d *Dispatcher) SendTicket(ctx context.Context, bookingID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.deliver(ctx, bookingID)
}

// Wait blocks until every scheduled delivery has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, bookingID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "notify.deliver")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	view, err := d.store.GetByID(ctx, bookingID)
	if err != nil {
		observability.NotificationsTotal.WithLabelValues(observability.ResultNotFound).Inc()
		return err
	}
	if view.Customer.Email == "" {
		observability.NotificationsTotal.WithLabelValues(observability.ResultNoEmail).Inc()
		return domain.ErrNoEmail
	}

	ticket, err := Render(*view)
	if err != nil {
		observability.NotificationsTotal.WithLabelValues(observability.ResultError).Inc()
		return err
	}
	if err := d.transport.Deliver(ctx, ticket); err != nil {
		observability.NotificationsTotal.WithLabelValues(observability.ResultDeliverErr).Inc()
		span.RecordError(err)
		return errors.Wrap(err, "deliver ticket")
	}
	if q, ok := d.transport.(ports.QueuedTransport); ok && q.Queued() {
		observability.NotificationsTotal.WithLabelValues(observability.ResultQueued).Inc()
		return nil
	}
	observability.NotificationsTotal.WithLabelValues(observability.ResultOK).Inc()

	if err := d.store.MarkSent(ctx, bookingID, d.now()); err != nil {
		return errors.Wrap(err, "mark ticket sent")
	}
	if d.cache != nil {
		if err := d.cache.InvalidateBooking(ctx, view.Code); err != nil {
			d.logger.WithError(err).WithField("code", view.Code).Warn("booking cache invalidate")
		}
	}
	if d.auditor != nil {
		if err := d.auditor.TicketSent(ctx, *view); err != nil {
			d.logger.WithError(err).WithField("booking_id", bookingID).Warn("audit ticket sent")
		}
	}
	return nil
}
