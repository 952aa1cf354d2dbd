package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is the schedulable resource bookings are taken against. It is owned by
// the catalog side of the system; the reservation core only reads it.
type Event struct {
	ID         uuid.UUID
	Slug       string
	Title      string
	StartTime  time.Time
	EndTime    *time.Time
	Capacity   int // 0 means unlimited
	PriceCents int64
	Currency   string
	VenueName  string
	City       string
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

type Booking struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	Code        string
	Quantity    int
	AmountCents int64
	Method      string
	Status      Status
	Customer    Contact
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SentAt      *time.Time
}

// BookingView is a booking joined with the event context it was made for.
type BookingView struct {
	Booking
	Event Event
}

// Availability is the capacity ledger for one event at a point in time.
type Availability struct {
	Capacity  int
	Booked    int
	Remaining int
	Unlimited bool
}
