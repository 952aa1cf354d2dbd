// Package ports declares what the reservation and notification services need
// from the outside world. Adapters under internal/adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tunbebong-creator/music-space/internal/domain"
)

// BookingStore is the single transactional store shared by every API
// instance. Mutual exclusion for capacity lives in its row locks.
type BookingStore interface {
	WithTx(ctx context.Context, fn func(tx BookingTx) error) error
	GetByCode(ctx context.Context, code string) (*domain.BookingView, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BookingView, error)
	List(ctx context.Context) ([]domain.BookingView, error)
	GetEventBySlug(ctx context.Context, slug string) (*domain.Event, error)
	BookedQuantity(ctx context.Context, eventID uuid.UUID) (int, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// BookingTx is the unit of work opened by BookingStore.WithTx. Nothing it
// writes is visible until fn returns nil and the commit succeeds.
type BookingTx interface {
	// LockEventBySlug takes an exclusive lock on the event row until the
	// transaction ends.
	LockEventBySlug(ctx context.Context, slug string) (*domain.Event, error)
	BookedQuantity(ctx context.Context, eventID uuid.UUID) (int, error)
	// InsertBooking reports false when the code is already taken.
	InsertBooking(ctx context.Context, b domain.Booking) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, at time.Time) error
	InsertOutbox(ctx context.Context, msg domain.OutboxMessage) error
}

// Notifier schedules delivery of a booking's ticket without waiting for it.
type Notifier interface {
	Dispatch(bookingID uuid.UUID)
}

// Ticket is the rendered confirmation artifact.
type Ticket struct {
	BookingID uuid.UUID `json:"booking_id"`
	Code      string    `json:"code"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Text      string    `json:"text"`
}

type TicketTransport interface {
	Deliver(ctx context.Context, t Ticket) error
}

// QueuedTransport is implemented by transports whose Deliver only hands the
// ticket to another worker. That worker records sent_at, not the dispatcher.
type QueuedTransport interface {
	TicketTransport
	Queued() bool
}

type Auditor interface {
	BookingCreated(ctx context.Context, b domain.Booking) error
	StatusChanged(ctx context.Context, b domain.BookingView) error
	TicketSent(ctx context.Context, b domain.BookingView) error
}

type ViewCache interface {
	GetBooking(ctx context.Context, code string) (*domain.BookingView, error)
	SetBooking(ctx context.Context, v domain.BookingView) error
	InvalidateBooking(ctx context.Context, code string) error
}
