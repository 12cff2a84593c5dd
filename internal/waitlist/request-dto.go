package waitlist

import "github.com/google/uuid"

type JoinWaitlistRequest struct {
	EventID         uuid.UUID `json:"event_id" binding:"required"`
	TicketQuantity  int       `json:"ticket_quantity" binding:"required,min=1"`
	MaxPriceWilling *float64  `json:"max_price_willing,omitempty" binding:"omitempty,gte=0"`
	SeatPreferences JSONMap   `json:"seat_preferences,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

type RespondOfferRequest struct {
	Action        ResponseAction `json:"action" binding:"required,oneof=accept decline"`
	DeclineReason string         `json:"decline_reason,omitempty" binding:"max=255"`
}

type ReleaseTicketsRequest struct {
	AvailableTickets int                `json:"available_tickets" binding:"required,min=1"`
	Reason           ReleaseReason      `json:"reason,omitempty"`
	Strategy         *StrategyOverrides `json:"strategy,omitempty"`
	SeatSections     []string           `json:"seat_sections,omitempty"`
}

type UpgradePriorityRequest struct {
	Priority Priority `json:"priority" binding:"required"`
}

type BulkUpdateRequest struct {
	Filter  Filter      `json:"filter"`
	Patch   EntryPatch  `json:"patch"`
	Options BulkOptions `json:"options"`
}

type BulkRemoveRequest struct {
	Filter  Filter      `json:"filter"`
	Reason  string      `json:"reason,omitempty" binding:"max=255"`
	Options BulkOptions `json:"options"`
}

type BulkImportRequest struct {
	EventID uuid.UUID     `json:"event_id" binding:"required"`
	Rows    []ImportRow   `json:"rows" binding:"required,min=1"`
	Options BulkOptions   `json:"options"`
	Import  ImportOptions `json:"import"`
}

type BulkAdjustRequest struct {
	Filter     Filter             `json:"filter"`
	Adjustment PositionAdjustment `json:"adjustment"`
	Options    BulkOptions        `json:"options"`
}
