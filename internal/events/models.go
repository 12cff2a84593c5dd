package events

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
	StatusCancelled EventStatus = "cancelled"
	StatusCompleted EventStatus = "completed"
)

type Event struct {
	ID            uuid.UUID   `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string      `json:"name" gorm:"not null;size:255"`
	Description   string      `json:"description" gorm:"type:text"`
	Venue         string      `json:"venue" gorm:"not null;size:255"`
	DateTime      time.Time   `json:"date_time" gorm:"not null"`
	TotalCapacity int         `json:"total_capacity" gorm:"not null;check:total_capacity > 0"`
	BookedCount   int         `json:"booked_count" gorm:"default:0;check:booked_count >= 0"`
	Price         float64     `json:"price" gorm:"not null;check:price >= 0"`
	Status        EventStatus `json:"status" gorm:"type:varchar(20);default:'draft'"`

	CreatedBy uuid.UUID `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Event) TableName() string {
	return "events"
}

// Unbooked is capacity minus confirmed bookings, never negative
func (e *Event) Unbooked() int {
	if n := e.TotalCapacity - e.BookedCount; n > 0 {
		return n
	}
	return 0
}

func (e *Event) IsBookable() bool {
	return e.Status == StatusPublished
}
