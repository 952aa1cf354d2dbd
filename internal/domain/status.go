package domain

import "strings"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCheckedIn Status = "checked_in"
)

var statuses = map[Status]struct{}{
	StatusPending:   {},
	StatusConfirmed: {},
	StatusCancelled: {},
	StatusCheckedIn: {},
}

// ParseStatus normalises operator input and checks it against the four
// lifecycle states. Transitions between members are not further restricted.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statuses[st]; !ok {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// HoldsCapacity reports whether a booking in this state counts against the
// event capacity.
func (s Status) HoldsCapacity() bool {
	return s != StatusCancelled
}
