package waitlist

import (
	"time"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
)

// Filter selects waitlist entries for bulk operations. Every set criterion
// must match; list criteria match any of their values.
type Filter struct {
	EventIDs    []uuid.UUID   `json:"event_ids,omitempty"`
	UserIDs     []uuid.UUID   `json:"user_ids,omitempty"`
	Priorities  []Priority    `json:"priorities,omitempty" validate:"omitempty,dive,priority"`
	Statuses    []EntryStatus `json:"statuses,omitempty" validate:"omitempty,dive,entry_status"`
	PositionMin *int          `json:"position_min,omitempty" validate:"omitempty,gte=1"`
	PositionMax *int          `json:"position_max,omitempty" validate:"omitempty,gte=1"`
	JoinedFrom  *time.Time    `json:"joined_from,omitempty"`
	JoinedTo    *time.Time    `json:"joined_to,omitempty"`
	WaitDaysMin *float64      `json:"wait_days_min,omitempty" validate:"omitempty,gte=0"`
	WaitDaysMax *float64      `json:"wait_days_max,omitempty" validate:"omitempty,gte=0"`
	PriceMin    *float64      `json:"price_min,omitempty" validate:"omitempty,gte=0"`
	PriceMax    *float64      `json:"price_max,omitempty" validate:"omitempty,gte=0"`
	Tags        []string      `json:"tags,omitempty" validate:"omitempty,dive,required"`
}

func (f Filter) IsEmpty() bool {
	return len(f.EventIDs) == 0 && len(f.UserIDs) == 0 && len(f.Priorities) == 0 &&
		len(f.Statuses) == 0 && f.PositionMin == nil && f.PositionMax == nil &&
		f.JoinedFrom == nil && f.JoinedTo == nil && f.WaitDaysMin == nil &&
		f.WaitDaysMax == nil && f.PriceMin == nil && f.PriceMax == nil && len(f.Tags) == 0
}

// Validate rejects empty filters and inverted ranges
func (f Filter) Validate() error {
	if f.IsEmpty() {
		return errs.Validation("filter must set at least one criterion")
	}
	if err := validateStruct(f); err != nil {
		return err
	}
	if f.PositionMin != nil && f.PositionMax != nil && *f.PositionMin > *f.PositionMax {
		return errs.Validation("position_min must not exceed position_max")
	}
	if f.JoinedFrom != nil && f.JoinedTo != nil && f.JoinedFrom.After(*f.JoinedTo) {
		return errs.Validation("joined_from must not be after joined_to")
	}
	if f.WaitDaysMin != nil && f.WaitDaysMax != nil && *f.WaitDaysMin > *f.WaitDaysMax {
		return errs.Validation("wait_days_min must not exceed wait_days_max")
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return errs.Validation("price_min must not exceed price_max")
	}
	return nil
}

// Matches evaluates the filter against one entry. Price bounds apply to
// maxPriceWilling, so entries without a ceiling never match a price range.
func (f Filter) Matches(e WaitlistEntry, now time.Time) bool {
	if len(f.EventIDs) > 0 && !containsUUID(f.EventIDs, e.EventID) {
		return false
	}
	if len(f.UserIDs) > 0 && !containsUUID(f.UserIDs, e.UserID) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, e.Priority) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, e.Status) {
		return false
	}
	if f.PositionMin != nil && e.Position < *f.PositionMin {
		return false
	}
	if f.PositionMax != nil && e.Position > *f.PositionMax {
		return false
	}
	if f.JoinedFrom != nil && e.JoinedAt.Before(*f.JoinedFrom) {
		return false
	}
	if f.JoinedTo != nil && e.JoinedAt.After(*f.JoinedTo) {
		return false
	}
	if f.WaitDaysMin != nil || f.WaitDaysMax != nil {
		days := WaitingDays(e, now)
		if f.WaitDaysMin != nil && days < *f.WaitDaysMin {
			return false
		}
		if f.WaitDaysMax != nil && days > *f.WaitDaysMax {
			return false
		}
	}
	if f.PriceMin != nil || f.PriceMax != nil {
		if e.MaxPriceWilling == nil {
			return false
		}
		if f.PriceMin != nil && *e.MaxPriceWilling < *f.PriceMin {
			return false
		}
		if f.PriceMax != nil && *e.MaxPriceWilling > *f.PriceMax {
			return false
		}
	}
	if len(f.Tags) > 0 && !hasAnyTag(e.Tags, f.Tags) {
		return false
	}
	return true
}

// Apply filters entries in memory, preserving their order
func (f Filter) Apply(entries []WaitlistEntry, now time.Time) []WaitlistEntry {
	out := make([]WaitlistEntry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e, now) {
			out = append(out, e)
		}
	}
	return out
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsUUID(list []uuid.UUID, id uuid.UUID) bool {
	return contains(list, id)
}

func hasAnyTag(have StringList, want []string) bool {
	for _, w := range want {
		if contains([]string(have), w) {
			return true
		}
	}
	return false
}
