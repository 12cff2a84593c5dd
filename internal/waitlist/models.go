package waitlist

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSONMap represents a JSON map type that can be stored in the database
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database storage
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, j)
}

// GormDataType tells GORM how to handle this type
func (JSONMap) GormDataType() string {
	return "jsonb"
}

// StringList is a list of strings stored as a JSON array
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, s)
}

func (StringList) GormDataType() string {
	return "jsonb"
}

// Priority is the tier a waitlist entry is queued under
type Priority string

const (
	PriorityStandard Priority = "STANDARD"
	PriorityLoyalty  Priority = "LOYALTY"
	PriorityPremium  Priority = "PREMIUM"
	PriorityVIP      Priority = "VIP"
)

// Priorities lists every tier, highest first
var Priorities = []Priority{PriorityVIP, PriorityPremium, PriorityLoyalty, PriorityStandard}

// Rank orders tiers; a higher rank is served first. Unknown tiers rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityVIP:
		return 4
	case PriorityPremium:
		return 3
	case PriorityLoyalty:
		return 2
	case PriorityStandard:
		return 1
	default:
		return 0
	}
}

func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// EntryStatus represents the status of a waitlist entry
type EntryStatus string

const (
	EntryStatusActive    EntryStatus = "ACTIVE"
	EntryStatusNotified  EntryStatus = "NOTIFIED"
	EntryStatusExpired   EntryStatus = "EXPIRED"
	EntryStatusConverted EntryStatus = "CONVERTED"
	EntryStatusRemoved   EntryStatus = "REMOVED"
)

// IsOpen reports whether the entry still holds the user's place on the event
func (s EntryStatus) IsOpen() bool {
	return s == EntryStatusActive || s == EntryStatusNotified
}

// IsTerminal reports whether the entry can no longer be mutated
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusConverted || s == EntryStatusRemoved || s == EntryStatusExpired
}

func (s EntryStatus) IsValid() bool {
	return s.IsOpen() || s.IsTerminal()
}

// OfferStatus represents the status of a ticket offer
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "PENDING"
	OfferStatusOffered   OfferStatus = "OFFERED"
	OfferStatusAccepted  OfferStatus = "ACCEPTED"
	OfferStatusDeclined  OfferStatus = "DECLINED"
	OfferStatusExpired   OfferStatus = "EXPIRED"
	OfferStatusCancelled OfferStatus = "CANCELLED"
)

// ReleaseReason records why tickets were released to the waitlist
type ReleaseReason string

const (
	ReleaseReasonCancellation        ReleaseReason = "CANCELLATION"
	ReleaseReasonRefund              ReleaseReason = "REFUND"
	ReleaseReasonAdditionalInventory ReleaseReason = "ADDITIONAL_INVENTORY"
	ReleaseReasonPriceChange         ReleaseReason = "PRICE_CHANGE"
	ReleaseReasonManual              ReleaseReason = "MANUAL"
	ReleaseReasonSystem              ReleaseReason = "SYSTEM"
	ReleaseReasonVIPPriority         ReleaseReason = "VIP_PRIORITY"
)

func (r ReleaseReason) IsValid() bool {
	switch r {
	case ReleaseReasonCancellation, ReleaseReasonRefund, ReleaseReasonAdditionalInventory,
		ReleaseReasonPriceChange, ReleaseReasonManual, ReleaseReasonSystem, ReleaseReasonVIPPriority:
		return true
	}
	return false
}

// WaitlistEntry represents a user's place in an event waitlist.
//
// JoinedAt is the ordering timestamp: within a tier entries are served oldest
// first. Position is written only by the position recalculator.
type WaitlistEntry struct {
	ID              uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()" db:"id"`
	UserID          uuid.UUID   `json:"user_id" gorm:"type:uuid;not null;index" db:"user_id"`
	EventID         uuid.UUID   `json:"event_id" gorm:"type:uuid;not null;index" db:"event_id"`
	Priority        Priority    `json:"priority" gorm:"type:varchar(20);not null" db:"priority"`
	PriorityRank    int         `json:"-" gorm:"not null;default:1" db:"priority_rank"`
	Status          EntryStatus `json:"status" gorm:"type:varchar(20);not null;index" db:"status"`
	Position        int         `json:"position" gorm:"not null;default:0" db:"position"`
	TicketQuantity  int         `json:"ticket_quantity" gorm:"not null" db:"ticket_quantity"`
	MaxPriceWilling *float64    `json:"max_price_willing,omitempty" gorm:"type:decimal(10,2)" db:"max_price_willing"`
	SeatPreferences JSONMap     `json:"seat_preferences,omitempty" gorm:"type:jsonb" db:"seat_preferences"`
	Tags            StringList  `json:"tags,omitempty" gorm:"type:jsonb" db:"tags"`
	Source          string      `json:"source" gorm:"type:varchar(20);not null;default:'JOIN'" db:"source"`

	// Tier benefits captured at join/upgrade time
	ExtendedOfferHours   int     `json:"extended_offer_hours" gorm:"not null;default:0" db:"extended_offer_hours"`
	PriceDiscountPercent float64 `json:"price_discount_percent" gorm:"type:decimal(5,2);not null;default:0" db:"price_discount_percent"`

	JoinedAt              time.Time  `json:"joined_at" gorm:"not null" db:"joined_at"`
	NotifiedAt            *time.Time `json:"notified_at,omitempty" db:"notified_at"`
	NotificationExpiresAt *time.Time `json:"notification_expires_at,omitempty" db:"notification_expires_at"`
	NotificationCount     int        `json:"notification_count" gorm:"not null;default:0" db:"notification_count"`
	LastNotificationAt    *time.Time `json:"last_notification_at,omitempty" db:"last_notification_at"`
	ConvertedAt           *time.Time `json:"converted_at,omitempty" db:"converted_at"`
	RemovedAt             *time.Time `json:"removed_at,omitempty" db:"removed_at"`
	RemovalReason         string     `json:"removal_reason,omitempty" gorm:"type:varchar(255)" db:"removal_reason"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime" db:"updated_at"`
}

func (WaitlistEntry) TableName() string {
	return "waitlist_entries"
}

const (
	EntrySourceJoin   = "JOIN"
	EntrySourceImport = "IMPORT"
)

// TicketOffer is a time-boxed grant of tickets to one waitlist entry
type TicketOffer struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()" db:"id"`
	EntryID        uuid.UUID     `json:"entry_id" gorm:"type:uuid;not null;index" db:"entry_id"`
	EventID        uuid.UUID     `json:"event_id" gorm:"type:uuid;not null;index" db:"event_id"`
	UserID         uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;index" db:"user_id"`
	TicketQuantity int           `json:"ticket_quantity" gorm:"not null" db:"ticket_quantity"`
	OfferPrice     float64       `json:"offer_price" gorm:"type:decimal(10,2);not null" db:"offer_price"`
	OriginalPrice  *float64      `json:"original_price,omitempty" gorm:"type:decimal(10,2)" db:"original_price"`
	ReleaseReason  ReleaseReason `json:"release_reason" gorm:"type:varchar(30);not null" db:"release_reason"`
	Status         OfferStatus   `json:"status" gorm:"type:varchar(20);not null;index" db:"status"`
	ExpiresAt      time.Time     `json:"expires_at" gorm:"not null;index" db:"expires_at"`
	RespondedAt    *time.Time    `json:"responded_at,omitempty" db:"responded_at"`
	DeclineReason  string        `json:"decline_reason,omitempty" gorm:"type:varchar(255)" db:"decline_reason"`
	OrderRef       string        `json:"order_ref,omitempty" gorm:"type:varchar(100)" db:"order_ref"`
	CreatedAt      time.Time     `json:"created_at" gorm:"autoCreateTime" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"autoUpdateTime" db:"updated_at"`
}

func (TicketOffer) TableName() string {
	return "ticket_offers"
}

// OfferTransition describes a compare-and-set move of an offer out of one status
type OfferTransition struct {
	To            OfferStatus
	At            time.Time
	DeclineReason string
	OrderRef      string
}

// PositionChange is a single position write produced by recalculation
type PositionChange struct {
	EntryID     uuid.UUID `json:"entry_id"`
	OldPosition int       `json:"old_position"`
	NewPosition int       `json:"new_position"`
}
