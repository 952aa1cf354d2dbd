// Package reservation implements the capacity-bounded booking engine: the
// reservation transaction, the booking lifecycle and the read paths.
//
// Capacity correctness relies entirely on the store's event row lock taken in
// Reserve. There is no in-process locking, so any number of API instances can
// share one store.
package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
	"github.com/tunbebong-creator/music-space/internal/observability"
	"github.com/tunbebong-creator/music-space/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	maxTxAttempts    = 3
	maxCodeAttempts  = 3
	defaultTxTimeout = 10 * time.Second
)

var tracer = otel.Tracer("reservation")

type Service struct {
	store     ports.BookingStore
	notifier  ports.Notifier
	auditor   ports.Auditor
	cache     ports.ViewCache
	logger    observability.Logger
	txTimeout time.Duration
	now       func() time.Time
	newCode   func() (string, error)
}

type Option func(*Service)

func WithAuditor(a ports.Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithCache(c ports.ViewCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTxTimeout bounds a whole reservation unit, lock wait included.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

func NewService(store ports.BookingStore, notifier ports.Notifier, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		notifier:  notifier,
		logger:    logger,
		txTimeout: defaultTxTimeout,
		now:       time.Now,
		newCode:   domain.NewCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Result struct {
	BookingID uuid.UUID
	Code      string
}

// Reserve books req.Quantity seats on the event identified by req.Slug.
//
// The event row is locked, the ledger is read and the booking is inserted in
// one transaction. Either the full booking is committed or nothing is. The
// ticket is dispatched only after a successful commit and its outcome never
// reaches the caller.
func (s *Service) Reserve(ctx context.Context, req domain.ReserveRequest) (*Result, error) {
	ctx, span := tracer.Start(ctx, "reservation.Reserve")
	defer span.End()

	req, err := req.Normalize()
	if err != nil {
		observability.ReservationsTotal.WithLabelValues(observability.ResultInvalid).Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("event.slug", req.Slug), attribute.Int("booking.quantity", req.Quantity))

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var booking domain.Booking
	err = s.inTx(ctx, func(tx ports.BookingTx) error {
		ev, err := tx.LockEventBySlug(ctx, req.Slug)
		if err != nil {
			return err
		}
		booked, err := tx.BookedQuantity(ctx, ev.ID)
		if err != nil {
			return errors.Wrap(err, "read booked quantity")
		}
		if err := domain.CheckCapacity(ev.Capacity, booked, req.Quantity); err != nil {
			return err
		}
		if err := domain.CheckQuantity(ev.PriceCents, req.Quantity); err != nil {
			return err
		}

		b, err := s.insertBooking(ctx, tx, *ev, req)
		if err != nil {
			return err
		}
		msg, err := domain.NewBookingCreatedMessage(b)
		if err != nil {
			return errors.Wrap(err, "encode outbox message")
		}
		if err := tx.InsertOutbox(ctx, msg); err != nil {
			return errors.Wrap(err, "insert outbox message")
		}
		booking = b
		return nil
	})
	if err != nil {
		observability.ReservationsTotal.WithLabelValues(resultLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	observability.ReservationsTotal.WithLabelValues(observability.ResultOK).Inc()
	span.SetAttributes(attribute.String("booking.code", booking.Code))

	s.notifier.Dispatch(booking.ID)
	if s.auditor != nil {
		if err := s.auditor.BookingCreated(ctx, booking); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("audit booking created")
		}
	}

	return &Result{BookingID: booking.ID, Code: booking.Code}, nil
}

// insertBooking retries with a fresh code when the store reports the code as
// taken. The event lock is still held so the capacity check stays valid.
func (s *Service) insertBooking(ctx context.Context, tx ports.BookingTx, ev domain.Event, req domain.ReserveRequest) (domain.Booking, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Booking{}, errors.Wrap(err, "generate booking code")
		}
		b := domain.NewBooking(ev, req, code, s.now())
		ok, err := tx.InsertBooking(ctx, b)
		if err != nil {
			return domain.Booking{}, errors.Wrap(err, "insert booking")
		}
		if ok {
			return b, nil
		}
		s.logger.WithField("code", code).Warn("booking code collision, regenerating")
	}
	return domain.Booking{}, domain.ErrCodeCollision
}

// SetStatus moves a booking to status. Any member of the four-state set is
// accepted from any state; cancelling frees capacity because the ledger
// ignores cancelled bookings.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*domain.BookingView, error) {
	ctx, span := tracer.Start(ctx, "reservation.SetStatus")
	defer span.End()

	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.id", id.String()), attribute.String("booking.status", string(st)))

	err = s.inTx(ctx, func(tx ports.BookingTx) error {
		now := s.now()
		if err := tx.UpdateStatus(ctx, id, st, now); err != nil {
			return err
		}
		msg, err := domain.NewStatusChangedMessage(id, st, now)
		if err != nil {
			return errors.Wrap(err, "encode outbox message")
		}
		return tx.InsertOutbox(ctx, msg)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	view, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, view.Code)
	if s.auditor != nil {
		if err := s.auditor.StatusChanged(ctx, *view); err != nil {
			s.logger.WithError(err).WithField("booking_id", id).Warn("audit status change")
		}
	}
	return view, nil
}

// inTx runs fn in a store transaction, retrying serialization failures. Each
// failed attempt has been rolled back in full by the store.
func (s *Service) inTx(ctx context.Context, fn func(tx ports.BookingTx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		start := time.Now()
		err = s.store.WithTx(ctx, fn)
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
		s.logger.WithField("attempt", attempt).Warn("transaction serialization failure")
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrSoldOut):
		return observability.ResultSoldOut
	case errors.Is(err, domain.ErrEventNotFound):
		return observability.ResultNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return observability.ResultInvalid
	case errors.Is(err, domain.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return observability.ResultLockWait
	default:
		return observability.ResultError
	}
}
