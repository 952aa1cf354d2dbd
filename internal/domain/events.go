package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
)

// OutboxMessage is a domain event written in the same transaction as the
// state change it describes.
type OutboxMessage struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	DedupeKey     string
}

type BookingCreatedPayload struct {
	BookingID   uuid.UUID `json:"booking_id"`
	EventID     uuid.UUID `json:"event_id"`
	Code        string    `json:"code"`
	Quantity    int       `json:"quantity"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	CreatedAt   time.Time `json:"created_at"`
}

type StatusChangedPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

func NewBookingCreatedMessage(b Booking) (OutboxMessage, error) {
	payload, err := json.Marshal(BookingCreatedPayload{
		BookingID:   b.ID,
		EventID:     b.EventID,
		Code:        b.Code,
		Quantity:    b.Quantity,
		AmountCents: b.AmountCents,
		Method:      b.Method,
		CreatedAt:   b.CreatedAt,
	})
	if err != nil {
		return OutboxMessage{}, err
	}
	return newOutboxMessage(b.ID, EventBookingCreated, payload), nil
}

func NewStatusChangedMessage(id uuid.UUID, status Status, at time.Time) (OutboxMessage, error) {
	payload, err := json.Marshal(StatusChangedPayload{BookingID: id, Status: status, ChangedAt: at})
	if err != nil {
		return OutboxMessage{}, err
	}
	return newOutboxMessage(id, EventBookingStatusChanged, payload), nil
}

func newOutboxMessage(aggregateID uuid.UUID, eventType string, payload []byte) OutboxMessage {
	id := uuid.New()
	return OutboxMessage{
		ID:            id,
		AggregateType: "booking",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		DedupeKey:     id.String(),
	}
}
