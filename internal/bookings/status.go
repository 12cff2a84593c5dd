package bookings

// Status of a booking. Only confirmed bookings count towards a user's
// spend and attendance when their waitlist tier is resolved.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Counted reports whether the booking still holds tickets
func (s Status) Counted() bool {
	return s == StatusConfirmed
}
