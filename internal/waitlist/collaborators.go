package waitlist

//go:generate mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NotificationKind names a user-facing waitlist notification
type NotificationKind string

const (
	NotificationOfferAvailable   NotificationKind = "offer_available"
	NotificationOfferAccepted    NotificationKind = "offer_accepted"
	NotificationOfferDeclined    NotificationKind = "offer_declined"
	NotificationOfferExpired     NotificationKind = "offer_expired"
	NotificationOfferCancelled   NotificationKind = "offer_cancelled"
	NotificationPositionChanged  NotificationKind = "position_changed"
	NotificationPriorityUpgraded NotificationKind = "priority_upgraded"
	NotificationEntryRemoved     NotificationKind = "entry_removed"
	NotificationWaitlistJoined   NotificationKind = "waitlist_joined"
)

// Notifier delivers notifications. The engine never waits on delivery
// outcome; errors are logged and dropped.
type Notifier interface {
	Notify(ctx context.Context, userID, eventID uuid.UUID, kind NotificationKind, payload map[string]interface{}) error
}

// ReservationRequest is what an accepted offer asks the order service for
type ReservationRequest struct {
	EventID  uuid.UUID
	UserID   uuid.UUID
	OfferID  uuid.UUID
	Quantity int
	Price    float64
}

// OrderService reserves tickets for an accepted offer and returns an order reference
type OrderService interface {
	Reserve(ctx context.Context, req ReservationRequest) (string, error)
}

// EventInfo is the event metadata the engine reads
type EventInfo struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BasePrice float64   `json:"base_price"`
	// AvailableTickets is already net of tickets held by open offers
	AvailableTickets int `json:"available_tickets"`
}

// UserIdentity identifies a user to find or create during bulk import
type UserIdentity struct {
	Email     string
	FirstName string
	LastName  string
}

// Directory is the read side of users and events
type Directory interface {
	GetUserProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*EventInfo, error)
	FindOrCreateUser(ctx context.Context, identity UserIdentity) (uuid.UUID, bool, error)
}

// JobScheduler enqueues a named task for a worker, optionally delayed
type JobScheduler interface {
	Enqueue(ctx context.Context, taskName string, payload interface{}, delay time.Duration) error
}
