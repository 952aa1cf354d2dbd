package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrSoldOut              = errors.New("sold out")
	ErrNoEmail              = errors.New("booking has no contact email")
	ErrCodeCollision        = errors.New("booking code collision")
	ErrLockTimeout          = errors.New("event lock wait timed out")

	// ErrQuantityTooLarge is also an ErrInvalidInput.
	ErrQuantityTooLarge = errors.Mark(errors.New("quantity too large"), ErrInvalidInput)
)

// SoldOutError reports a capacity conflict together with what is still left.
type SoldOutError struct {
	Remaining int
}

func (e *SoldOutError) Error() string {
	return fmt.Sprintf("sold out: %d remaining", e.Remaining)
}

func (e *SoldOutError) Is(target error) bool {
	return target == ErrSoldOut
}
