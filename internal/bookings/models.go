package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Source records how a booking was made
type Source string

const (
	SourceDirect   Source = "DIRECT"
	SourceWaitlist Source = "WAITLIST"
)

// Booking defines the main booking structure
type Booking struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	EventID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"event_id"`
	OfferID     *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"offer_id,omitempty"`
	Quantity    int        `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice   float64    `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	TotalPrice  float64    `gorm:"type:decimal(10,2);not null" json:"total_price"`
	Status      Status     `gorm:"type:varchar(20);check:status IN ('CONFIRMED', 'CANCELLED');default:'CONFIRMED'" json:"status"`
	Source      Source     `gorm:"type:varchar(20);not null;default:'DIRECT'" json:"source"`
	BookingRef  string     `gorm:"unique;not null" json:"booking_ref"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// TableName sets the table name for Booking
func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) IsCancelled() bool {
	return !b.Status.Counted()
}

// UserStats aggregates a user's confirmed bookings
type UserStats struct {
	TotalSpend     float64 `json:"total_spend"`
	EventsAttended int     `json:"events_attended"`
}
