package waitlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// BulkOptions apply to every bulk operation
type BulkOptions struct {
	DryRun      bool `json:"dry_run"`
	BatchSize   int  `json:"batch_size,omitempty" validate:"omitempty,gte=1,lte=1000"`
	NotifyUsers bool `json:"notify_users"`
}

type BulkItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult is the aggregate outcome; Success is true only when nothing failed
type BulkResult struct {
	Success   bool                   `json:"success"`
	Processed int                    `json:"processed"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Errors    []BulkItemError        `json:"errors"`
	Summary   map[string]interface{} `json:"summary"`
}

func newBulkResult(processed int, dryRun bool) *BulkResult {
	return &BulkResult{
		Processed: processed,
		Errors:    []BulkItemError{},
		Summary:   map[string]interface{}{"dry_run": dryRun},
	}
}

func (r *BulkResult) fail(id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, BulkItemError{ID: id, Error: err.Error()})
}

func (r *BulkResult) finish() *BulkResult {
	r.Success = r.Failed == 0
	return r
}

// EntryPatch lists the fields a bulk update may change. Zero values are left alone.
type EntryPatch struct {
	Priority        Priority   `json:"priority,omitempty" validate:"omitempty,priority"`
	TicketQuantity  int        `json:"ticket_quantity,omitempty" validate:"omitempty,gte=1"`
	MaxPriceWilling *float64   `json:"max_price_willing,omitempty" validate:"omitempty,gte=0"`
	SeatPreferences JSONMap    `json:"seat_preferences,omitempty"`
	Tags            StringList `json:"tags,omitempty"`
}

func (p EntryPatch) IsEmpty() bool {
	return p.Priority == "" && p.TicketQuantity == 0 && p.MaxPriceWilling == nil &&
		len(p.SeatPreferences) == 0 && len(p.Tags) == 0
}

// ImportRow is one user to place on an event's waitlist
type ImportRow struct {
	Email           string     `json:"email" validate:"required,email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Priority        Priority   `json:"priority,omitempty" validate:"omitempty,priority"`
	TicketQuantity  int        `json:"ticket_quantity" validate:"omitempty,gte=1"`
	MaxPriceWilling *float64   `json:"max_price_willing,omitempty" validate:"omitempty,gte=0"`
	Tags            []string   `json:"tags,omitempty"`
	JoinedAt        *time.Time `json:"joined_at,omitempty"`
}

type ImportOptions struct {
	// ErrorOnDuplicate reports users already on the waitlist as failures instead of skipping them
	ErrorOnDuplicate bool     `json:"error_on_duplicate"`
	DefaultPriority  Priority `json:"default_priority,omitempty" validate:"omitempty,priority"`
}

// AdjustMode selects how bulkAdjustPositions moves an entry
type AdjustMode string

const (
	AdjustSet   AdjustMode = "set"
	AdjustShift AdjustMode = "shift"
	AdjustFront AdjustMode = "front"
	AdjustBack  AdjustMode = "back"
)

// PositionAdjustment moves entries within their own tier. Value is the target
// position for set and the signed offset for shift; negative moves forward.
type PositionAdjustment struct {
	Mode  AdjustMode `json:"mode" validate:"required,oneof=set shift front back"`
	Value int        `json:"value"`
}

// BulkOperationExecutor applies filtered mutations with per-item accounting
type BulkOperationExecutor struct {
	store        Store
	recalculator *PositionRecalculator
	releases     *ReleaseEngine
	directory    Directory
	notifier     Notifier
	resolver     *PriorityResolver
	batchSize    int
	maxQuantity  int
	opts         options
}

func NewBulkOperationExecutor(
	store Store,
	recalculator *PositionRecalculator,
	releases *ReleaseEngine,
	directory Directory,
	notifier Notifier,
	resolver *PriorityResolver,
	batchSize, maxQuantity int,
	opts ...Option,
) *BulkOperationExecutor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BulkOperationExecutor{
		store:        store,
		recalculator: recalculator,
		releases:     releases,
		directory:    directory,
		notifier:     notifier,
		resolver:     resolver,
		batchSize:    batchSize,
		maxQuantity:  maxQuantity,
		opts:         buildOptions("bulk", opts),
	}
}

func (b *BulkOperationExecutor) chunkSize(o BulkOptions) int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return b.batchSize
}

// chunks calls fn over consecutive slices of at most size items
func chunks[T any](items []T, size int, fn func([]T)) {
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		fn(items[start:end])
	}
}

func (b *BulkOperationExecutor) match(ctx context.Context, f Filter, o BulkOptions) ([]WaitlistEntry, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := validateStruct(o); err != nil {
		return nil, err
	}
	return b.store.FindEntries(ctx, f, b.opts.clock.Now())
}

// BulkUpdate applies patch to every matching open entry
func (b *BulkOperationExecutor) BulkUpdate(ctx context.Context, f Filter, patch EntryPatch, o BulkOptions) (*BulkResult, error) {
	if patch.IsEmpty() {
		return nil, errs.Validation("patch must change at least one field")
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if b.maxQuantity > 0 && patch.TicketQuantity > b.maxQuantity {
		return nil, errs.Validation("ticket_quantity must not exceed %d", b.maxQuantity)
	}

	entries, err := b.match(ctx, f, o)
	if err != nil {
		return nil, err
	}

	result := newBulkResult(len(entries), o.DryRun)
	if o.DryRun {
		result.Succeeded = result.Processed
		result.Summary["events"] = len(distinctEvents(entries))
		return b.log(ctx, BulkOpUpdate, o, result), nil
	}

	affected := make(map[uuid.UUID]bool)
	priorityChanges := 0

	chunks(entries, b.chunkSize(o), func(batch []WaitlistEntry) {
		for _, e := range batch {
			var updated WaitlistEntry
			err := b.store.WithTx(ctx, func(tx Store) error {
				cur, err := tx.GetEntryForUpdate(ctx, e.ID)
				if err != nil {
					return err
				}
				if cur.Status.IsTerminal() {
					return errs.InvalidState("entry %s is %s", cur.ID, cur.Status)
				}

				before := cur.Priority
				if err := copier.CopyWithOption(cur, &patch, copier.Option{IgnoreEmpty: true}); err != nil {
					return fmt.Errorf("failed to apply patch: %w", err)
				}
				switch {
				case cur.Priority.Rank() > before.Rank():
					b.resolver.ApplyBenefits(cur)
				case cur.Priority.Rank() < before.Rank():
					// perks are earned by upgrading and do not survive a downgrade
					cur.ExtendedOfferHours = 0
					cur.PriceDiscountPercent = 0
				}
				if err := tx.SaveEntry(ctx, cur); err != nil {
					return err
				}
				updated = *cur
				return nil
			})
			if err != nil {
				result.fail(e.ID.String(), err)
				continue
			}
			result.Succeeded++
			if updated.Priority == e.Priority {
				continue
			}
			priorityChanges++
			if updated.Status == EntryStatusActive {
				affected[updated.EventID] = true
			}
			if o.NotifyUsers {
				notifyQuietly(ctx, b.notifier, b.opts, updated.UserID, updated.EventID, NotificationPriorityUpgraded, map[string]interface{}{
					"entry_id":     updated.ID.String(),
					"old_priority": string(e.Priority),
					"new_priority": string(updated.Priority),
				})
			}
		}
	})

	result.Summary["priority_changes"] = priorityChanges
	result.Summary["events_recalculated"] = b.recalculate(ctx, affected)
	return b.log(ctx, BulkOpUpdate, o, result.finish()), nil
}

// BulkRemove marks matching entries removed, cancelling any open offer and
// re-releasing its tickets
func (b *BulkOperationExecutor) BulkRemove(ctx context.Context, f Filter, reason string, o BulkOptions) (*BulkResult, error) {
	entries, err := b.match(ctx, f, o)
	if err != nil {
		return nil, err
	}

	result := newBulkResult(len(entries), o.DryRun)
	if o.DryRun {
		result.Succeeded = result.Processed
		result.Summary["events"] = len(distinctEvents(entries))
		return b.log(ctx, BulkOpRemove, o, result), nil
	}
	if reason == "" {
		reason = "bulk removal"
	}

	now := b.opts.clock.Now()
	affected := make(map[uuid.UUID]bool)
	freed := make(map[uuid.UUID]int)
	cancelled := 0

	chunks(entries, b.chunkSize(o), func(batch []WaitlistEntry) {
		for _, e := range batch {
			var (
				removed  WaitlistEntry
				wasOpen  bool
				freedQty int
			)
			err := b.store.WithTx(ctx, func(tx Store) error {
				freedQty = 0
				cur, err := tx.GetEntryForUpdate(ctx, e.ID)
				if err != nil {
					return err
				}
				if cur.Status.IsTerminal() {
					return errs.InvalidState("entry %s is %s", cur.ID, cur.Status)
				}

				wasOpen = cur.Status.IsOpen()
				if cur.Status == EntryStatusNotified {
					offer, err := tx.GetOpenOfferForEntry(ctx, cur.ID)
					switch {
					case err == nil:
						moved, err := tx.TransitionOffer(ctx, offer.ID, OfferStatusOffered, OfferTransition{
							To: OfferStatusCancelled,
							At: now,
						})
						if err != nil {
							return err
						}
						if moved {
							freedQty = offer.TicketQuantity
						}
					case !errs.Is(err, errs.ErrNotFound):
						return err
					}
				}

				cur.Status = EntryStatusRemoved
				cur.RemovedAt = &now
				cur.RemovalReason = reason
				cur.NotificationExpiresAt = nil
				if err := tx.SaveEntry(ctx, cur); err != nil {
					return err
				}
				removed = *cur
				return nil
			})
			if err != nil {
				result.fail(e.ID.String(), err)
				continue
			}
			result.Succeeded++
			if wasOpen {
				affected[removed.EventID] = true
			}
			if freedQty > 0 {
				freed[removed.EventID] += freedQty
				cancelled++
				notifyQuietly(ctx, b.notifier, b.opts, removed.UserID, removed.EventID, NotificationOfferCancelled, map[string]interface{}{
					"entry_id": removed.ID.String(),
					"reason":   reason,
				})
			}
			if o.NotifyUsers {
				notifyQuietly(ctx, b.notifier, b.opts, removed.UserID, removed.EventID, NotificationEntryRemoved, map[string]interface{}{
					"entry_id": removed.ID.String(),
					"reason":   reason,
				})
			}
		}
	})

	result.Summary["offers_cancelled"] = cancelled
	result.Summary["events_recalculated"] = b.recalculate(ctx, affected)
	result.Summary["tickets_rereleased"] = b.rerelease(ctx, freed)
	return b.log(ctx, BulkOpRemove, o, result.finish()), nil
}

// BulkImport finds or creates each user and places them on the event's waitlist
func (b *BulkOperationExecutor) BulkImport(ctx context.Context, eventID uuid.UUID, rows []ImportRow, o BulkOptions, io ImportOptions) (*BulkResult, error) {
	if eventID == uuid.Nil {
		return nil, errs.Validation("event_id is required")
	}
	if len(rows) == 0 {
		return nil, errs.Validation("rows must not be empty")
	}
	if err := validateStruct(o); err != nil {
		return nil, err
	}
	if err := validateStruct(io); err != nil {
		return nil, err
	}

	result := newBulkResult(len(rows), o.DryRun)
	if o.DryRun {
		result.Succeeded = result.Processed
		return b.log(ctx, BulkOpImport, o, result), nil
	}

	now := b.opts.clock.Now()
	skipped, usersCreated, added := 0, 0, 0

	chunks(rows, b.chunkSize(o), func(batch []ImportRow) {
		for _, row := range batch {
			id := strings.ToLower(strings.TrimSpace(row.Email))
			if id == "" {
				id = fmt.Sprintf("row-%d", result.Succeeded+result.Failed+1)
			}

			created, dup, err := b.importRow(ctx, eventID, row, io, now)
			if err != nil {
				result.fail(id, err)
				continue
			}
			result.Succeeded++
			if created {
				usersCreated++
			}
			if dup {
				skipped++
			} else {
				added++
			}
		}
	})

	affected := map[uuid.UUID]bool{}
	if added > 0 {
		affected[eventID] = true
	}
	result.Summary["added"] = added
	result.Summary["skipped"] = skipped
	result.Summary["users_created"] = usersCreated
	result.Summary["events_recalculated"] = b.recalculate(ctx, affected)
	return b.log(ctx, BulkOpImport, o, result.finish()), nil
}

// importRow returns whether a user was created and whether the row was a skipped duplicate
func (b *BulkOperationExecutor) importRow(ctx context.Context, eventID uuid.UUID, row ImportRow, io ImportOptions, now time.Time) (bool, bool, error) {
	if err := validateStruct(row); err != nil {
		return false, false, err
	}
	qty := row.TicketQuantity
	if qty == 0 {
		qty = 1
	}
	if b.maxQuantity > 0 && qty > b.maxQuantity {
		return false, false, errs.Validation("ticket_quantity must not exceed %d", b.maxQuantity)
	}

	userID, created, err := b.directory.FindOrCreateUser(ctx, UserIdentity{
		Email:     strings.ToLower(strings.TrimSpace(row.Email)),
		FirstName: row.FirstName,
		LastName:  row.LastName,
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to resolve user: %w", err)
	}

	if _, err := b.store.FindOpenEntry(ctx, userID, eventID); err == nil {
		if io.ErrorOnDuplicate {
			return created, false, errs.Conflict("user %s is already on the waitlist", row.Email)
		}
		return created, true, nil
	} else if !errs.Is(err, errs.ErrNotFound) {
		return created, false, err
	}

	priority := row.Priority
	if priority == "" {
		priority = io.DefaultPriority
	}
	if priority == "" {
		priority = PriorityStandard
	}

	joinedAt := now
	if row.JoinedAt != nil {
		joinedAt = row.JoinedAt.UTC()
	}

	entry := &WaitlistEntry{
		UserID:          userID,
		EventID:         eventID,
		Priority:        priority,
		Status:          EntryStatusActive,
		TicketQuantity:  qty,
		MaxPriceWilling: row.MaxPriceWilling,
		Tags:            StringList(row.Tags),
		Source:          EntrySourceImport,
		JoinedAt:        joinedAt,
	}

	if err := b.store.CreateEntry(ctx, entry); err != nil {
		if errs.Is(err, errs.ErrConflict) && !io.ErrorOnDuplicate {
			return created, true, nil
		}
		return created, false, err
	}
	return created, false, nil
}

// BulkAdjustPositions moves matching active entries within their tier by
// rewriting their ordering timestamp, then renumbers each event once
func (b *BulkOperationExecutor) BulkAdjustPositions(ctx context.Context, f Filter, adj PositionAdjustment, o BulkOptions) (*BulkResult, error) {
	if err := validateStruct(adj); err != nil {
		return nil, err
	}
	if adj.Mode == AdjustSet && adj.Value < 1 {
		return nil, errs.Validation("set requires a target position of at least 1")
	}

	entries, err := b.match(ctx, f, o)
	if err != nil {
		return nil, err
	}

	result := newBulkResult(len(entries), o.DryRun)
	if o.DryRun {
		result.Succeeded = result.Processed
		result.Summary["events"] = len(distinctEvents(entries))
		return b.log(ctx, BulkOpAdjust, o, result), nil
	}

	moved := 0
	affected := make(map[uuid.UUID]bool)

	for _, eventID := range distinctEvents(entries) {
		queue, err := b.store.ListActiveEntries(ctx, eventID)
		if err != nil {
			for _, e := range entries {
				if e.EventID == eventID {
					result.fail(e.ID.String(), err)
				}
			}
			continue
		}
		SortQueue(queue)

		for _, e := range entries {
			if e.EventID != eventID {
				continue
			}
			newJoined, changed, err := moveWithinTier(queue, e.ID, adj)
			if err != nil {
				result.fail(e.ID.String(), err)
				continue
			}
			if !changed {
				result.Succeeded++
				continue
			}

			err = b.store.WithTx(ctx, func(tx Store) error {
				cur, err := tx.GetEntryForUpdate(ctx, e.ID)
				if err != nil {
					return err
				}
				if cur.Status != EntryStatusActive {
					return errs.InvalidState("entry %s is %s", cur.ID, cur.Status)
				}
				cur.JoinedAt = newJoined
				return tx.SaveEntry(ctx, cur)
			})
			if err != nil {
				result.fail(e.ID.String(), err)
				continue
			}
			result.Succeeded++
			moved++
			affected[eventID] = true
		}
	}

	result.Summary["moved"] = moved
	result.Summary["events_recalculated"] = b.recalculate(ctx, affected)

	if o.NotifyUsers && moved > 0 {
		b.notifyPositions(ctx, entries)
	}
	return b.log(ctx, BulkOpAdjust, o, result.finish()), nil
}

// moveWithinTier reorders queue in place and returns the ordering timestamp
// that places the entry at its new index. The target is clamped to the
// entry's own tier so tier order is never violated.
func moveWithinTier(queue []WaitlistEntry, entryID uuid.UUID, adj PositionAdjustment) (time.Time, bool, error) {
	idx := -1
	for i := range queue {
		if queue[i].ID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return time.Time{}, false, errs.InvalidState("entry %s is not active", entryID)
	}

	entry := queue[idx]
	lo, hi := idx, idx
	for lo > 0 && queue[lo-1].Priority == entry.Priority {
		lo--
	}
	for hi < len(queue)-1 && queue[hi+1].Priority == entry.Priority {
		hi++
	}

	var target int
	switch adj.Mode {
	case AdjustSet:
		target = adj.Value - 1
	case AdjustShift:
		target = idx + adj.Value
	case AdjustFront:
		target = lo
	case AdjustBack:
		target = hi
	default:
		return time.Time{}, false, errs.Validation("unknown adjustment mode %q", adj.Mode)
	}
	if target < lo {
		target = lo
	}
	if target > hi {
		target = hi
	}
	if target == idx {
		return entry.JoinedAt, false, nil
	}

	// remove then insert at target
	rest := append(append([]WaitlistEntry{}, queue[:idx]...), queue[idx+1:]...)
	reordered := append(append(append([]WaitlistEntry{}, rest[:target]...), entry), rest[target:]...)

	var prev, next *time.Time
	if target > lo {
		t := reordered[target-1].JoinedAt
		prev = &t
	}
	if target < hi {
		t := reordered[target+1].JoinedAt
		next = &t
	}

	var joined time.Time
	switch {
	case prev != nil && next != nil:
		joined = prev.Add(next.Sub(*prev) / 2)
	case prev != nil:
		joined = prev.Add(time.Millisecond)
	case next != nil:
		joined = next.Add(-time.Millisecond)
	default:
		joined = entry.JoinedAt
	}

	reordered[target].JoinedAt = joined
	copy(queue, reordered)
	return joined, true, nil
}

func (b *BulkOperationExecutor) notifyPositions(ctx context.Context, entries []WaitlistEntry) {
	for _, e := range entries {
		cur, err := b.store.GetEntry(ctx, e.ID)
		if err != nil || cur.Position == e.Position {
			continue
		}
		notifyQuietly(ctx, b.notifier, b.opts, cur.UserID, cur.EventID, NotificationPositionChanged, map[string]interface{}{
			"entry_id":     cur.ID.String(),
			"old_position": e.Position,
			"new_position": cur.Position,
		})
	}
}

// recalculate runs one pass per affected event and returns how many ran
func (b *BulkOperationExecutor) recalculate(ctx context.Context, affected map[uuid.UUID]bool) int {
	if b.recalculator == nil || len(affected) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	_ = b.recalculator.RecalculateAll(ctx, ids)
	return len(ids)
}

func (b *BulkOperationExecutor) rerelease(ctx context.Context, freed map[uuid.UUID]int) int {
	total := 0
	if b.releases == nil {
		return total
	}
	for eventID, tickets := range freed {
		if tickets <= 0 {
			continue
		}
		if _, err := b.releases.Release(ctx, ReleaseRequest{
			EventID:          eventID,
			AvailableTickets: tickets,
			Reason:           ReleaseReasonCancellation,
		}); err != nil {
			b.opts.logger.ErrorWithContext(ctx, "Re-release after bulk removal failed", err, map[string]interface{}{
				"event_id": eventID.String(),
			})
			continue
		}
		total += tickets
	}
	return total
}

func (b *BulkOperationExecutor) log(ctx context.Context, op string, o BulkOptions, r *BulkResult) *BulkResult {
	if o.DryRun {
		r.finish()
	}
	b.opts.logger.LogBulkOperation(ctx, op, o.DryRun, r.Processed, r.Succeeded, r.Failed)
	return r
}

// Execute dispatches a queued bulk task to its operation
func (b *BulkOperationExecutor) Execute(ctx context.Context, p BulkTaskPayload) (*BulkResult, error) {
	switch p.Operation {
	case BulkOpUpdate:
		if p.Patch == nil {
			return nil, errs.Validation("update requires a patch")
		}
		return b.BulkUpdate(ctx, p.Filter, *p.Patch, p.Options)
	case BulkOpRemove:
		return b.BulkRemove(ctx, p.Filter, p.Reason, p.Options)
	case BulkOpImport:
		return b.BulkImport(ctx, p.EventID, p.Rows, p.Options, p.Import)
	case BulkOpAdjust:
		if p.Adjustment == nil {
			return nil, errs.Validation("adjust_positions requires an adjustment")
		}
		return b.BulkAdjustPositions(ctx, p.Filter, *p.Adjustment, p.Options)
	default:
		return nil, errs.Validation("unknown bulk operation %q", p.Operation)
	}
}

func distinctEvents(entries []WaitlistEntry) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, e := range entries {
		if !seen[e.EventID] {
			seen[e.EventID] = true
			out = append(out, e.EventID)
		}
	}
	return out
}
