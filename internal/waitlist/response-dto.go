package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type WaitlistResponse struct {
	ID               uuid.UUID    `json:"id"`
	EventID          uuid.UUID    `json:"event_id"`
	Priority         Priority     `json:"priority"`
	Position         int          `json:"position"`
	PositionHint     int          `json:"position_hint,omitempty"`
	TicketQuantity   int          `json:"ticket_quantity"`
	Status           EntryStatus  `json:"status"`
	EstimatedWait    string       `json:"estimated_wait,omitempty"`
	EstimatedWaitMin int          `json:"estimated_wait_minutes,omitempty"`
	SeatPreferences  JSONMap      `json:"seat_preferences,omitempty"`
	JoinedAt         time.Time    `json:"joined_at"`
	NotifiedAt       *time.Time   `json:"notified_at,omitempty"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	CurrentOffer     *TicketOffer `json:"current_offer,omitempty"`
}

type WaitlistStatsResponse struct {
	EventID        uuid.UUID `json:"event_id"`
	TotalEntries   int       `json:"total_entries"`
	ActiveInQueue  int       `json:"active_in_queue"`
	NotifiedCount  int       `json:"notified_count"`
	ConvertedCount int       `json:"converted_count"`
	ExpiredCount   int       `json:"expired_count"`
	RemovedCount   int       `json:"removed_count"`
	OpenOffers     int       `json:"open_offers"`
}

// UpgradeResult reports a tier change and the queue movement it caused
type UpgradeResult struct {
	EntryID          uuid.UUID    `json:"entry_id"`
	OldPriority      Priority     `json:"old_priority"`
	NewPriority      Priority     `json:"new_priority"`
	OldPosition      int          `json:"old_position"`
	NewPosition      int          `json:"new_position"`
	PositionsSkipped int          `json:"positions_skipped"`
	Benefits         TierBenefits `json:"benefits"`
	ImmediateOffer   *TicketOffer `json:"immediate_offer,omitempty"`
}

type PaginatedEntries struct {
	Entries    []WaitlistEntry `json:"entries"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}
