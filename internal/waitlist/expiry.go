package waitlist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SweepResult reports one expiry sweep
type SweepResult struct {
	Scanned         int `json:"scanned"`
	Expired         int `json:"expired"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
	ReleasesCreated int `json:"releases_created"`
}

// ExpirySweeper reverts offers past their deadline and re-releases their tickets
type ExpirySweeper struct {
	store        Store
	releases     *ReleaseEngine
	recalculator *PositionRecalculator
	notifier     Notifier
	batchSize    int
	// maxNotifications retires an entry after this many unanswered offers; 0 disables
	maxNotifications int
	opts             options
}

func NewExpirySweeper(
	store Store,
	releases *ReleaseEngine,
	recalculator *PositionRecalculator,
	notifier Notifier,
	batchSize, maxNotifications int,
	opts ...Option,
) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirySweeper{
		store:            store,
		releases:         releases,
		recalculator:     recalculator,
		notifier:         notifier,
		batchSize:        batchSize,
		maxNotifications: maxNotifications,
		opts:             buildOptions("sweeper", opts),
	}
}

type expiredOffer struct {
	offer        TicketOffer
	entryRetired bool
}

// Sweep expires overdue offers. Per-offer failures are logged and counted;
// only a failure to list candidates is returned.
func (s *ExpirySweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.opts.clock.Now()
	overdue, err := s.store.ListExpiredOffers(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired offers: %w", err)
	}

	result := &SweepResult{Scanned: len(overdue)}
	var expired []expiredOffer

	for _, o := range overdue {
		exp, err := s.expire(ctx, o.ID)
		if err != nil {
			result.Failed++
			s.opts.logger.ErrorWithContext(ctx, "Failed to expire offer", err, map[string]interface{}{
				"offer_id": o.ID.String(),
			})
			continue
		}
		if exp == nil {
			// another writer resolved it first
			result.Skipped++
			continue
		}
		result.Expired++
		expired = append(expired, *exp)
	}

	result.ReleasesCreated = s.rerelease(ctx, expired)
	return result, nil
}

// ExpireOffer lazily expires a single offer found overdue on read or on a
// late response, then re-releases its tickets. It reports whether this call
// performed the transition.
func (s *ExpirySweeper) ExpireOffer(ctx context.Context, offerID uuid.UUID) (bool, error) {
	exp, err := s.expire(ctx, offerID)
	if err != nil || exp == nil {
		return false, err
	}
	s.rerelease(ctx, []expiredOffer{*exp})
	return true, nil
}

// expire transitions one offer to expired and returns its entry to the queue.
// It returns nil when the offer is no longer an overdue offered offer.
func (s *ExpirySweeper) expire(ctx context.Context, offerID uuid.UUID) (*expiredOffer, error) {
	now := s.opts.clock.Now()
	var out *expiredOffer

	err := s.store.WithTx(ctx, func(tx Store) error {
		offer, err := tx.GetOfferForUpdate(ctx, offerID)
		if err != nil {
			return err
		}
		if !OfferExpired(*offer, now) {
			return nil
		}

		moved, err := tx.TransitionOffer(ctx, offer.ID, OfferStatusOffered, OfferTransition{
			To: OfferStatusExpired,
			At: now,
		})
		if err != nil || !moved {
			return err
		}
		offer.Status = OfferStatusExpired

		entry, err := tx.GetEntryForUpdate(ctx, offer.EntryID)
		if err != nil {
			return err
		}

		retired := false
		if entry.Status == EntryStatusNotified {
			if s.maxNotifications > 0 && entry.NotificationCount >= s.maxNotifications {
				entry.Status = EntryStatusExpired
				entry.NotificationExpiresAt = nil
				retired = true
			} else {
				reactivate(entry)
			}
			if err := tx.SaveEntry(ctx, entry); err != nil {
				return err
			}
		}

		out = &expiredOffer{offer: *offer, entryRetired: retired}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out != nil {
		s.opts.logger.LogOfferResolved(ctx, out.offer.ID.String(), out.offer.EventID.String(), string(OfferStatusExpired))
		notifyQuietly(ctx, s.notifier, s.opts, out.offer.UserID, out.offer.EventID, NotificationOfferExpired, offerPayload(&out.offer))
	}
	return out, nil
}

// rerelease recalculates each affected event once and offers the freed
// tickets to the next candidates, skipping the entries that just expired
func (s *ExpirySweeper) rerelease(ctx context.Context, expired []expiredOffer) int {
	type freed struct {
		tickets int
		reason  ReleaseReason
		exclude []uuid.UUID
	}

	byEvent := make(map[uuid.UUID]*freed)
	var order []uuid.UUID
	for _, exp := range expired {
		f, ok := byEvent[exp.offer.EventID]
		if !ok {
			f = &freed{reason: exp.offer.ReleaseReason}
			byEvent[exp.offer.EventID] = f
			order = append(order, exp.offer.EventID)
		}
		f.tickets += exp.offer.TicketQuantity
		f.exclude = append(f.exclude, exp.offer.EntryID)
	}

	created := 0
	for _, eventID := range order {
		f := byEvent[eventID]
		if s.recalculator != nil {
			if _, err := s.recalculator.Recalculate(ctx, eventID); err != nil {
				s.opts.logger.ErrorWithContext(ctx, "Recalculation after expiry failed", err, map[string]interface{}{
					"event_id": eventID.String(),
				})
			}
		}
		if s.releases == nil {
			continue
		}

		res, err := s.releases.Release(ctx, ReleaseRequest{
			EventID:          eventID,
			AvailableTickets: f.tickets,
			Reason:           f.reason,
			ExcludeEntryIDs:  f.exclude,
		})
		if err != nil {
			s.opts.logger.ErrorWithContext(ctx, "Re-release after expiry failed", err, map[string]interface{}{
				"event_id": eventID.String(),
				"tickets":  f.tickets,
			})
			continue
		}
		created += res.ReleasesCreated
	}
	return created
}
