package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecalcResult reports one recalculation pass
type RecalcResult struct {
	EventID uuid.UUID        `json:"event_id"`
	Active  int              `json:"active"`
	Changed int              `json:"changed"`
	Changes []PositionChange `json:"changes,omitempty"`
}

// PositionRecalculator renumbers an event's active entries 1..N in queue order.
// It is the only writer of WaitlistEntry.Position.
type PositionRecalculator struct {
	store  Store
	locker EventLocker
	opts   options
}

func NewPositionRecalculator(store Store, locker EventLocker, opts ...Option) *PositionRecalculator {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &PositionRecalculator{
		store:  store,
		locker: locker,
		opts:   buildOptions("recalculator", opts),
	}
}

// Recalculate holds the event lock for the whole read-sort-write pass and
// writes only the entries whose position changed, so a repeat call with no
// intervening mutation writes nothing.
func (r *PositionRecalculator) Recalculate(ctx context.Context, eventID uuid.UUID) (*RecalcResult, error) {
	start := time.Now()

	unlock, err := r.locker.Lock(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, err := r.store.ListActiveEntries(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active entries: %w", err)
	}
	SortQueue(active)

	changes := AssignPositions(active)
	if len(changes) > 0 {
		if err := r.store.UpdatePositions(ctx, changes); err != nil {
			return nil, fmt.Errorf("failed to write positions: %w", err)
		}
	}

	r.opts.logger.LogRecalculation(ctx, eventID.String(), len(active), len(changes), time.Since(start))

	return &RecalcResult{
		EventID: eventID,
		Active:  len(active),
		Changed: len(changes),
		Changes: changes,
	}, nil
}

// RecalculateAll runs one pass per event and returns the first error after
// attempting every event
func (r *PositionRecalculator) RecalculateAll(ctx context.Context, eventIDs []uuid.UUID) error {
	var firstErr error
	for _, id := range eventIDs {
		if _, err := r.Recalculate(ctx, id); err != nil {
			r.opts.logger.ErrorWithContext(ctx, "Position recalculation failed", err, map[string]interface{}{
				"event_id": id.String(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// positionOf finds an entry's position in a recalculation result, falling back
// to the stored value when it did not change
func positionOf(res *RecalcResult, entry WaitlistEntry) int {
	if res != nil {
		for _, c := range res.Changes {
			if c.EntryID == entry.ID {
				return c.NewPosition
			}
		}
	}
	return entry.Position
}
