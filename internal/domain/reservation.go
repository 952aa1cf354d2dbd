package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMethod = "cash"
	// MaxQuantity keeps ledger sums and frozen amounts inside int64.
	MaxQuantity = math.MaxInt32
)

type ReserveRequest struct {
	Slug     string
	Quantity int
	Method   string
	Contact  Contact
}

// ClampQuantity applies the reservation floor: anything below one books one.
func ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

// Normalize trims input, applies defaults and validates required fields.
func (r ReserveRequest) Normalize() (ReserveRequest, error) {
	r.Slug = strings.TrimSpace(r.Slug)
	r.Method = strings.ToLower(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = DefaultMethod
	}
	r.Quantity = ClampQuantity(r.Quantity)
	r.Contact.Name = strings.TrimSpace(r.Contact.Name)
	r.Contact.Email = strings.TrimSpace(r.Contact.Email)
	r.Contact.Phone = strings.TrimSpace(r.Contact.Phone)
	if r.Slug == "" || r.Contact.Name == "" || r.Contact.Email == "" || r.Contact.Phone == "" {
		return r, ErrInvalidInput
	}
	return r, nil
}

// CheckQuantity rejects a quantity the store cannot represent: above
// MaxQuantity, or one whose frozen amount would overflow int64 at priceCents.
func CheckQuantity(priceCents int64, quantity int) error {
	if quantity > MaxQuantity {
		return ErrQuantityTooLarge
	}
	if priceCents > 0 && int64(quantity) > math.MaxInt64/priceCents {
		return ErrQuantityTooLarge
	}
	return nil
}

// NewBooking builds the pending booking for ev. The amount is frozen here and
// never recomputed from the event afterwards.
func NewBooking(ev Event, req ReserveRequest, code string, now time.Time) Booking {
	return Booking{
		ID:          uuid.New(),
		EventID:     ev.ID,
		Code:        code,
		Quantity:    req.Quantity,
		AmountCents: ev.PriceCents * int64(req.Quantity),
		Method:      req.Method,
		Status:      StatusPending,
		Customer:    req.Contact,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
