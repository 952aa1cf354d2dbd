package domain

// Remaining returns how many seats are left for capacity after booked seats
// have been taken. It never goes below zero.
func Remaining(capacity, booked int) int {
	if capacity-booked < 0 {
		return 0
	}
	return capacity - booked
}

func NewAvailability(capacity, booked int) Availability {
	if capacity <= 0 {
		return Availability{Booked: booked, Unlimited: true}
	}
	return Availability{
		Capacity:  capacity,
		Booked:    booked,
		Remaining: Remaining(capacity, booked),
	}
}

// CheckCapacity returns a *SoldOutError when quantity does not fit. A zero
// capacity is unbounded and always fits.
func CheckCapacity(capacity, booked, quantity int) error {
	if capacity <= 0 {
		return nil
	}
	if left := Remaining(capacity, booked); quantity > left {
		return &SoldOutError{Remaining: left}
	}
	return nil
}
