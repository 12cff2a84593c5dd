package waitlist

import (
	"github.com/google/uuid"
)

// Task names consumed by the worker
const (
	TaskReleaseBatch = "waitlist:release_batch"
	TaskExpirySweep  = "waitlist:expiry_sweep"
	TaskBulkExecute  = "waitlist:bulk_execute"
)

// ReleaseBatchPayload is a continuation batch for tickets still unoffered
type ReleaseBatchPayload struct {
	EventID          uuid.UUID        `json:"event_id"`
	AvailableTickets int              `json:"available_tickets"`
	Reason           ReleaseReason    `json:"reason"`
	Strategy         *ReleaseStrategy `json:"strategy,omitempty"`
	ExcludeEntryIDs  []uuid.UUID      `json:"exclude_entry_ids,omitempty"`
	SeatSections     []string         `json:"seat_sections,omitempty"`
}

// Request rebuilds the release request the payload stands for
func (p ReleaseBatchPayload) Request() ReleaseRequest {
	return ReleaseRequest{
		EventID:          p.EventID,
		AvailableTickets: p.AvailableTickets,
		Reason:           p.Reason,
		Strategy:         p.Strategy,
		ExcludeEntryIDs:  p.ExcludeEntryIDs,
		SeatSections:     p.SeatSections,
	}
}

// Bulk operation names carried by TaskBulkExecute
const (
	BulkOpUpdate = "update"
	BulkOpRemove = "remove"
	BulkOpImport = "import"
	BulkOpAdjust = "adjust_positions"
)

// BulkTaskPayload carries one bulk operation to a worker
type BulkTaskPayload struct {
	Operation  string              `json:"operation"`
	Filter     Filter              `json:"filter"`
	Patch      *EntryPatch         `json:"patch,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	EventID    uuid.UUID           `json:"event_id,omitempty"`
	Rows       []ImportRow         `json:"rows,omitempty"`
	Adjustment *PositionAdjustment `json:"adjustment,omitempty"`
	Options    BulkOptions         `json:"options"`
	Import     ImportOptions       `json:"import,omitempty"`
}
