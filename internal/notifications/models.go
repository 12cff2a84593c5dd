package notifications

import (
	"encoding/json"
	"time"

	"evently-waitlist/internal/waitlist"

	"github.com/google/uuid"
)

type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "LOW"
	NotificationPriorityMedium NotificationPriority = "MEDIUM"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
)

// WaitlistNotification is the message published for every waitlist
// notification; delivery services consume it downstream.
type WaitlistNotification struct {
	ID        uuid.UUID                 `json:"id"`
	Kind      waitlist.NotificationKind `json:"kind"`
	Priority  NotificationPriority      `json:"priority"`
	UserID    uuid.UUID                 `json:"user_id"`
	EventID   uuid.UUID                 `json:"event_id"`
	Payload   map[string]interface{}    `json:"payload,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

func NewWaitlistNotification(userID, eventID uuid.UUID, kind waitlist.NotificationKind, payload map[string]interface{}, at time.Time) *WaitlistNotification {
	return &WaitlistNotification{
		ID:        uuid.New(),
		Kind:      kind,
		Priority:  GetDefaultPriority(kind),
		UserID:    userID,
		EventID:   eventID,
		Payload:   payload,
		CreatedAt: at,
	}
}

// GetDefaultPriority ranks kinds that need a timely reply above informational ones
func GetDefaultPriority(kind waitlist.NotificationKind) NotificationPriority {
	switch kind {
	case waitlist.NotificationOfferAvailable:
		return NotificationPriorityHigh
	case waitlist.NotificationPositionChanged, waitlist.NotificationWaitlistJoined:
		return NotificationPriorityLow
	default:
		return NotificationPriorityMedium
	}
}

// GetPartitionKey keeps one user's notifications ordered on one partition
func (n *WaitlistNotification) GetPartitionKey() string {
	return n.UserID.String()
}

func (n *WaitlistNotification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}
