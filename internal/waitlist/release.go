package waitlist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
)

// ReleaseRequest asks the engine to offer newly available tickets
type ReleaseRequest struct {
	EventID          uuid.UUID
	AvailableTickets int
	Reason           ReleaseReason
	// Strategy nil uses the engine default
	Strategy *ReleaseStrategy
	// ExcludeEntryIDs are skipped, e.g. the entry that just declined
	ExcludeEntryIDs []uuid.UUID
	// OnlyEntryIDs restricts candidates when non-empty
	OnlyEntryIDs []uuid.UUID
	// SeatSections are the sections being released, for preference matching
	SeatSections []string
}

// ReleaseResult summarises one release batch
type ReleaseResult struct {
	ReleasesCreated    int           `json:"releases_created"`
	UsersNotified      int           `json:"users_notified"`
	NextBatchScheduled bool          `json:"next_batch_scheduled"`
	TicketsRemaining   int           `json:"tickets_remaining"`
	Offers             []TicketOffer `json:"offers,omitempty"`
}

type candidate struct {
	entry WaitlistEntry
	score float64
}

// ReleaseEngine turns available tickets into time-boxed offers
type ReleaseEngine struct {
	store        Store
	directory    Directory
	notifier     Notifier
	scheduler    JobScheduler
	recalculator *PositionRecalculator
	defaults     ReleaseStrategy
	opts         options
}

func NewReleaseEngine(
	store Store,
	directory Directory,
	notifier Notifier,
	scheduler JobScheduler,
	recalculator *PositionRecalculator,
	defaults ReleaseStrategy,
	opts ...Option,
) *ReleaseEngine {
	return &ReleaseEngine{
		store:        store,
		directory:    directory,
		notifier:     notifier,
		scheduler:    scheduler,
		recalculator: recalculator,
		defaults:     defaults,
		opts:         buildOptions("release", opts),
	}
}

func (e *ReleaseEngine) DefaultStrategy() ReleaseStrategy {
	return e.defaults
}

// Release scores eligible entries and creates offers for the best of them.
// A failure on one candidate is logged and skipped.
func (e *ReleaseEngine) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error) {
	if req.AvailableTickets <= 0 {
		return nil, errs.Validation("available tickets must be positive, got %d", req.AvailableTickets)
	}
	if req.Reason == "" {
		req.Reason = ReleaseReasonManual
	}
	if !req.Reason.IsValid() {
		return nil, errs.Validation("unknown release reason %q", req.Reason)
	}

	strategy := e.defaults
	if req.Strategy != nil {
		strategy = *req.Strategy
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	event, err := e.directory.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", req.EventID, err)
	}

	now := e.opts.clock.Now()
	candidates, err := e.candidates(ctx, req, strategy, event, now)
	if err != nil {
		return nil, err
	}

	result := &ReleaseResult{TicketsRemaining: req.AvailableTickets}
	offersPerUser := make(map[uuid.UUID]int)
	tried := make(map[uuid.UUID]bool)
	offered := 0

	for _, c := range candidates {
		if result.ReleasesCreated >= strategy.BatchSize || result.TicketsRemaining <= 0 {
			break
		}
		if c.entry.TicketQuantity > result.TicketsRemaining {
			continue
		}

		if !e.underUserCap(ctx, c.entry, offersPerUser, strategy) {
			continue
		}

		tried[c.entry.ID] = true
		offer, err := e.createOffer(ctx, c.entry, event, strategy, req.Reason, now)
		if err != nil {
			e.opts.logger.ErrorWithContext(ctx, "Failed to create offer", err, map[string]interface{}{
				"entry_id": c.entry.ID.String(),
				"event_id": req.EventID.String(),
			})
			continue
		}

		offered++
		offersPerUser[c.entry.UserID]++
		result.ReleasesCreated++
		result.TicketsRemaining -= offer.TicketQuantity
		result.Offers = append(result.Offers, *offer)

		if e.notify(ctx, offer.UserID, offer.EventID, NotificationOfferAvailable, offerPayload(offer)) {
			result.UsersNotified++
		}
	}

	if offered > 0 && e.recalculator != nil {
		// offered entries left the active set
		if _, err := e.recalculator.Recalculate(ctx, req.EventID); err != nil {
			e.opts.logger.ErrorWithContext(ctx, "Recalculation after release failed", err, map[string]interface{}{
				"event_id": req.EventID.String(),
			})
		}
	}

	// a continuation is only worth scheduling when someone could still take
	// the leftover tickets; otherwise it would reschedule itself forever
	if result.TicketsRemaining > 0 && e.offerablePending(ctx, candidates, tried, offersPerUser, strategy, result.TicketsRemaining) > 0 {
		result.NextBatchScheduled = e.scheduleContinuation(ctx, req, strategy, result.TicketsRemaining)
	}

	return result, nil
}

// underUserCap reports whether the entry's user may hold another offer. Counts
// are cached in perUser for the duration of one release.
func (e *ReleaseEngine) underUserCap(ctx context.Context, entry WaitlistEntry, perUser map[uuid.UUID]int, strategy ReleaseStrategy) bool {
	count, seen := perUser[entry.UserID]
	if !seen {
		var err error
		count, err = e.store.CountOpenOffersForUser(ctx, entry.UserID)
		if err != nil {
			e.opts.logger.ErrorWithContext(ctx, "Failed to count user offers", err, map[string]interface{}{
				"entry_id": entry.ID.String(),
			})
			return false
		}
		perUser[entry.UserID] = count
	}
	return count < strategy.MaxOffersPerUser
}

// offerablePending counts candidates this batch did not try that would fit
// the remaining tickets and are under the per-user cap
func (e *ReleaseEngine) offerablePending(ctx context.Context, candidates []candidate, tried map[uuid.UUID]bool, perUser map[uuid.UUID]int, strategy ReleaseStrategy, remaining int) int {
	n := 0
	for _, c := range candidates {
		if tried[c.entry.ID] || c.entry.TicketQuantity > remaining {
			continue
		}
		if e.underUserCap(ctx, c.entry, perUser, strategy) {
			n++
		}
	}
	return n
}

// candidates returns eligible active entries, best score first
func (e *ReleaseEngine) candidates(ctx context.Context, req ReleaseRequest, strategy ReleaseStrategy, event *EventInfo, now time.Time) ([]candidate, error) {
	active, err := e.store.ListActiveEntries(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active entries: %w", err)
	}
	holding, err := e.store.OpenOfferEntryIDs(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	out := make([]candidate, 0, len(active))
	for _, entry := range active {
		if holding[entry.ID] || containsUUID(req.ExcludeEntryIDs, entry.ID) {
			continue
		}
		if len(req.OnlyEntryIDs) > 0 && !containsUUID(req.OnlyEntryIDs, entry.ID) {
			continue
		}
		if !PriceEligible(entry, event.BasePrice) {
			continue
		}
		seatMatch := strategy.ConsiderSeatPreferences && SeatPreferenceMatches(entry.SeatPreferences, req.SeatSections)
		out = append(out, candidate{
			entry: entry,
			score: SelectionScore(entry, strategy.PriorityWeights, now, seatMatch),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return QueueLess(out[i].entry, out[j].entry)
	})
	return out, nil
}

// createOffer re-reads the entry under lock so the eligibility check and the
// insert share one transaction
func (e *ReleaseEngine) createOffer(ctx context.Context, candidate WaitlistEntry, event *EventInfo, strategy ReleaseStrategy, reason ReleaseReason, now time.Time) (*TicketOffer, error) {
	var offer *TicketOffer

	err := e.store.WithTx(ctx, func(tx Store) error {
		entry, err := tx.GetEntryForUpdate(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if entry.Status != EntryStatusActive {
			return errs.InvalidState("entry %s is %s", entry.ID, entry.Status)
		}
		if _, err := tx.GetOpenOfferForEntry(ctx, entry.ID); err == nil {
			return errs.Conflict("entry %s already holds an offer", entry.ID)
		} else if !errs.Is(err, errs.ErrNotFound) {
			return err
		}

		expiresAt := now.Add(time.Duration(strategy.OfferExpirationHours+entry.ExtendedOfferHours) * time.Hour)
		base := event.BasePrice
		offer = &TicketOffer{
			ID:             uuid.New(),
			EntryID:        entry.ID,
			EventID:        entry.EventID,
			UserID:         entry.UserID,
			TicketQuantity: entry.TicketQuantity,
			OfferPrice:     OfferPrice(base, entry.MaxPriceWilling, strategy.PriceFlexibilityPercent, entry.PriceDiscountPercent),
			OriginalPrice:  &base,
			ReleaseReason:  reason,
			Status:         OfferStatusOffered,
			ExpiresAt:      expiresAt,
			CreatedAt:      now,
		}
		if err := tx.CreateOffer(ctx, offer); err != nil {
			return err
		}

		entry.Status = EntryStatusNotified
		entry.NotifiedAt = &now
		entry.NotificationExpiresAt = &expiresAt
		entry.NotificationCount++
		entry.LastNotificationAt = &now
		return tx.SaveEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.opts.logger.LogOfferCreated(ctx, offer.ID.String(), offer.EntryID.String(), offer.EventID.String(),
		offer.TicketQuantity, offer.OfferPrice, offer.ExpiresAt)
	return offer, nil
}

func (e *ReleaseEngine) scheduleContinuation(ctx context.Context, req ReleaseRequest, strategy ReleaseStrategy, remaining int) bool {
	if e.scheduler == nil {
		return false
	}

	payload := ReleaseBatchPayload{
		EventID:          req.EventID,
		AvailableTickets: remaining,
		Reason:           req.Reason,
		Strategy:         &strategy,
		ExcludeEntryIDs:  req.ExcludeEntryIDs,
		SeatSections:     req.SeatSections,
	}
	delay := time.Duration(strategy.ReleaseIntervalMinutes) * time.Minute
	if err := e.scheduler.Enqueue(ctx, TaskReleaseBatch, payload, delay); err != nil {
		e.opts.logger.ErrorWithContext(ctx, "Failed to schedule continuation batch", err, map[string]interface{}{
			"event_id":  req.EventID.String(),
			"remaining": remaining,
		})
		return false
	}
	return true
}

// notify is fire-and-forget; it reports whether the dispatcher accepted
func (e *ReleaseEngine) notify(ctx context.Context, userID, eventID uuid.UUID, kind NotificationKind, payload map[string]interface{}) bool {
	return notifyQuietly(ctx, e.notifier, e.opts, userID, eventID, kind, payload)
}

func notifyQuietly(ctx context.Context, n Notifier, o options, userID, eventID uuid.UUID, kind NotificationKind, payload map[string]interface{}) bool {
	if n == nil {
		return false
	}
	if err := n.Notify(ctx, userID, eventID, kind, payload); err != nil {
		o.logger.ErrorWithContext(ctx, "Notification dispatch failed", err, map[string]interface{}{
			"user_id":  userID.String(),
			"event_id": eventID.String(),
			"kind":     string(kind),
		})
		return false
	}
	return true
}

func offerPayload(o *TicketOffer) map[string]interface{} {
	return map[string]interface{}{
		"offer_id":        o.ID.String(),
		"entry_id":        o.EntryID.String(),
		"ticket_quantity": o.TicketQuantity,
		"offer_price":     o.OfferPrice,
		"expires_at":      o.ExpiresAt,
		"status":          string(o.Status),
	}
}
