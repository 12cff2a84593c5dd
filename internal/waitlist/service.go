package waitlist

import (
	"context"
	"fmt"
	"math"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
)

// Service interface defines the contract for single-entry waitlist operations
type Service interface {
	JoinWaitlist(ctx context.Context, userID uuid.UUID, request *JoinWaitlistRequest) (*WaitlistResponse, error)
	LeaveWaitlist(ctx context.Context, userID, eventID uuid.UUID) error
	GetWaitlistStatus(ctx context.Context, userID, eventID uuid.UUID) (*WaitlistResponse, error)
	UpgradePriority(ctx context.Context, entryID uuid.UUID, tier Priority) (*UpgradeResult, error)

	GetWaitlistStats(ctx context.Context, eventID uuid.UUID) (*WaitlistStatsResponse, error)
	GetWaitlistEntries(ctx context.Context, eventID uuid.UUID, status EntryStatus, page, limit int) (*PaginatedEntries, error)
	GetUserOffers(ctx context.Context, userID uuid.UUID) ([]TicketOffer, error)
}

// ServiceConfig contains configuration for the waitlist service
type ServiceConfig struct {
	MaxQuantityPerUser      int
	ImmediateOfferThreshold int
	SweepBatchSize          int
	BulkBatchSize           int
	MaxNotifications        int
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxQuantityPerUser:      MaxQuantityPerUser,
		ImmediateOfferThreshold: ImmediateOfferThreshold,
		SweepBatchSize:          100,
		BulkBatchSize:           100,
		MaxNotifications:        3,
	}
}

const (
	MaxQuantityPerUser      = 10
	ImmediateOfferThreshold = 5
	DefaultPageSize         = 20
	MaxPageSize             = 100
)

// service implements the Service interface
type service struct {
	store        Store
	directory    Directory
	notifier     Notifier
	resolver     *PriorityResolver
	recalculator *PositionRecalculator
	releases     *ReleaseEngine
	sweeper      *ExpirySweeper
	config       *ServiceConfig
	opts         options
}

// NewService creates a new waitlist service
func NewService(
	store Store,
	directory Directory,
	notifier Notifier,
	resolver *PriorityResolver,
	recalculator *PositionRecalculator,
	releases *ReleaseEngine,
	sweeper *ExpirySweeper,
	config *ServiceConfig,
	opts ...Option,
) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	return &service{
		store:        store,
		directory:    directory,
		notifier:     notifier,
		resolver:     resolver,
		recalculator: recalculator,
		releases:     releases,
		sweeper:      sweeper,
		config:       config,
		opts:         buildOptions("service", opts),
	}
}

// JoinWaitlist queues the user when the event is sold out
func (s *service) JoinWaitlist(ctx context.Context, userID uuid.UUID, request *JoinWaitlistRequest) (*WaitlistResponse, error) {
	if request.TicketQuantity < 1 || request.TicketQuantity > s.config.MaxQuantityPerUser {
		return nil, errs.Validation("ticket_quantity must be between 1 and %d", s.config.MaxQuantityPerUser)
	}
	if request.MaxPriceWilling != nil && *request.MaxPriceWilling < 0 {
		return nil, errs.Validation("max_price_willing must not be negative")
	}

	event, err := s.directory.GetEvent(ctx, request.EventID)
	if err != nil {
		return nil, err
	}
	if event.AvailableTickets > 0 {
		return nil, errs.Validation("event %s has %d tickets available; book directly", event.ID, event.AvailableTickets)
	}

	if _, err := s.store.FindOpenEntry(ctx, userID, request.EventID); err == nil {
		return nil, errs.Conflict("user is already on the waitlist for event %s", request.EventID)
	} else if !errs.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	profile, err := s.directory.GetUserProfile(ctx, userID)
	if err != nil {
		// tier falls back to standard rather than blocking the join
		s.opts.logger.ErrorWithContext(ctx, "Failed to load user profile", err, map[string]interface{}{
			"user_id": userID.String(),
		})
		profile = nil
	}
	tier := s.resolver.Resolve(profile, "")

	counts, err := s.store.CountEntriesByStatus(ctx, request.EventID)
	if err != nil {
		return nil, err
	}
	activeBefore := counts[EntryStatusActive]

	entry := &WaitlistEntry{
		UserID:          userID,
		EventID:         request.EventID,
		Priority:        tier,
		Status:          EntryStatusActive,
		TicketQuantity:  request.TicketQuantity,
		MaxPriceWilling: request.MaxPriceWilling,
		SeatPreferences: request.SeatPreferences,
		Tags:            StringList(request.Tags),
		Source:          EntrySourceJoin,
		JoinedAt:        s.opts.clock.Now(),
	}

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	res, err := s.recalculator.Recalculate(ctx, entry.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to recalculate positions: %w", err)
	}
	entry.Position = positionOf(res, *entry)

	resp := s.toResponse(entry, nil)
	resp.PositionHint = s.resolver.JoinPositionHint(activeBefore, tier)

	notifyQuietly(ctx, s.notifier, s.opts, userID, entry.EventID, NotificationWaitlistJoined, map[string]interface{}{
		"entry_id": entry.ID.String(),
		"position": entry.Position,
		"priority": string(tier),
	})
	return resp, nil
}

// LeaveWaitlist removes the user's open entry, cancelling any pending offer
// and handing its tickets to the next candidate
func (s *service) LeaveWaitlist(ctx context.Context, userID, eventID uuid.UUID) error {
	entry, err := s.store.FindOpenEntry(ctx, userID, eventID)
	if err != nil {
		return err
	}

	now := s.opts.clock.Now()
	freed := 0

	err = s.store.WithTx(ctx, func(tx Store) error {
		freed = 0
		cur, err := tx.GetEntryForUpdate(ctx, entry.ID)
		if err != nil {
			return err
		}
		if !cur.Status.IsOpen() {
			return errs.InvalidState("entry %s is %s", cur.ID, cur.Status)
		}

		if cur.Status == EntryStatusNotified {
			offer, err := tx.GetOpenOfferForEntry(ctx, cur.ID)
			if err == nil {
				moved, err := tx.TransitionOffer(ctx, offer.ID, OfferStatusOffered, OfferTransition{
					To: OfferStatusCancelled,
					At: now,
				})
				if err != nil {
					return err
				}
				if moved {
					freed = offer.TicketQuantity
				}
			} else if !errs.Is(err, errs.ErrNotFound) {
				return err
			}
		}

		cur.Status = EntryStatusRemoved
		cur.RemovedAt = &now
		cur.RemovalReason = "left by user"
		cur.NotificationExpiresAt = nil
		return tx.SaveEntry(ctx, cur)
	})
	if err != nil {
		return err
	}

	if _, err := s.recalculator.Recalculate(ctx, eventID); err != nil {
		s.opts.logger.ErrorWithContext(ctx, "Recalculation after leave failed", err, map[string]interface{}{
			"event_id": eventID.String(),
		})
	}

	if freed > 0 {
		if _, err := s.releases.Release(ctx, ReleaseRequest{
			EventID:          eventID,
			AvailableTickets: freed,
			Reason:           ReleaseReasonCancellation,
			ExcludeEntryIDs:  []uuid.UUID{entry.ID},
		}); err != nil {
			s.opts.logger.ErrorWithContext(ctx, "Re-release after leave failed", err, map[string]interface{}{
				"event_id": eventID.String(),
			})
		}
	}
	return nil
}

// GetWaitlistStatus returns the user's open entry, expiring an overdue offer first
func (s *service) GetWaitlistStatus(ctx context.Context, userID, eventID uuid.UUID) (*WaitlistResponse, error) {
	entry, err := s.store.FindOpenEntry(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	var offer *TicketOffer
	if entry.Status == EntryStatusNotified {
		offer, err = s.store.GetOpenOfferForEntry(ctx, entry.ID)
		if err != nil && !errs.Is(err, errs.ErrNotFound) {
			return nil, err
		}

		if offer != nil && OfferExpired(*offer, s.opts.clock.Now()) {
			if _, err := s.sweeper.ExpireOffer(ctx, offer.ID); err != nil {
				return nil, err
			}
			offer = nil
			if entry, err = s.store.GetEntry(ctx, entry.ID); err != nil {
				return nil, err
			}
			if !entry.Status.IsOpen() {
				return nil, errs.NotFound("no open waitlist entry for event %s", eventID)
			}
		}
	}

	return s.toResponse(entry, offer), nil
}

// UpgradePriority raises an active entry's tier, renumbers the queue and,
// when the entry lands near the head with unclaimed inventory, offers it
// tickets immediately
func (s *service) UpgradePriority(ctx context.Context, entryID uuid.UUID, tier Priority) (*UpgradeResult, error) {
	if !tier.IsValid() {
		return nil, errs.Validation("unknown priority %q", tier)
	}

	var before WaitlistEntry
	err := s.store.WithTx(ctx, func(tx Store) error {
		cur, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if cur.Status != EntryStatusActive {
			return errs.InvalidState("entry %s is %s", cur.ID, cur.Status)
		}
		if tier.Rank() <= cur.Priority.Rank() {
			return errs.Validation("%s is not an upgrade from %s", tier, cur.Priority)
		}
		before = *cur

		cur.Priority = tier
		s.resolver.ApplyBenefits(cur)
		return tx.SaveEntry(ctx, cur)
	})
	if err != nil {
		return nil, err
	}

	res, err := s.recalculator.Recalculate(ctx, before.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to recalculate positions: %w", err)
	}

	newPosition := positionOf(res, before)
	result := &UpgradeResult{
		EntryID:          entryID,
		OldPriority:      before.Priority,
		NewPriority:      tier,
		OldPosition:      before.Position,
		NewPosition:      newPosition,
		PositionsSkipped: int(math.Max(0, float64(before.Position-newPosition))),
		Benefits:         s.resolver.Benefits(tier),
	}

	notifyQuietly(ctx, s.notifier, s.opts, before.UserID, before.EventID, NotificationPriorityUpgraded, map[string]interface{}{
		"entry_id":          entryID.String(),
		"old_priority":      string(before.Priority),
		"new_priority":      string(tier),
		"old_position":      result.OldPosition,
		"new_position":      result.NewPosition,
		"positions_skipped": result.PositionsSkipped,
	})

	if s.config.ImmediateOfferThreshold > 0 && newPosition <= s.config.ImmediateOfferThreshold {
		result.ImmediateOffer = s.immediateOffer(ctx, before)
	}
	return result, nil
}

// immediateOffer offers unclaimed inventory straight to the upgraded entry
func (s *service) immediateOffer(ctx context.Context, entry WaitlistEntry) *TicketOffer {
	event, err := s.directory.GetEvent(ctx, entry.EventID)
	if err != nil {
		s.opts.logger.ErrorWithContext(ctx, "Failed to load event for immediate offer", err, map[string]interface{}{
			"event_id": entry.EventID.String(),
		})
		return nil
	}
	if event.AvailableTickets < entry.TicketQuantity {
		return nil
	}

	res, err := s.releases.Release(ctx, ReleaseRequest{
		EventID:          entry.EventID,
		AvailableTickets: entry.TicketQuantity,
		Reason:           ReleaseReasonVIPPriority,
		OnlyEntryIDs:     []uuid.UUID{entry.ID},
	})
	if err != nil || len(res.Offers) == 0 {
		if err != nil {
			s.opts.logger.ErrorWithContext(ctx, "Immediate offer failed", err, map[string]interface{}{
				"entry_id": entry.ID.String(),
			})
		}
		return nil
	}
	return &res.Offers[0]
}

func (s *service) GetWaitlistStats(ctx context.Context, eventID uuid.UUID) (*WaitlistStatsResponse, error) {
	counts, err := s.store.CountEntriesByStatus(ctx, eventID)
	if err != nil {
		return nil, err
	}
	openOffers, err := s.store.CountOpenOffers(ctx, eventID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return &WaitlistStatsResponse{
		EventID:        eventID,
		TotalEntries:   total,
		ActiveInQueue:  counts[EntryStatusActive],
		NotifiedCount:  counts[EntryStatusNotified],
		ConvertedCount: counts[EntryStatusConverted],
		ExpiredCount:   counts[EntryStatusExpired],
		RemovedCount:   counts[EntryStatusRemoved],
		OpenOffers:     openOffers,
	}, nil
}

func (s *service) GetWaitlistEntries(ctx context.Context, eventID uuid.UUID, status EntryStatus, page, limit int) (*PaginatedEntries, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	entries, total, err := s.store.ListEntries(ctx, eventID, status, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return &PaginatedEntries{
		Entries:    entries,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// GetUserOffers lists the user's offers, expiring overdue ones on the way
func (s *service) GetUserOffers(ctx context.Context, userID uuid.UUID) ([]TicketOffer, error) {
	offers, err := s.store.ListOffersForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.opts.clock.Now()
	expired := false
	for _, o := range offers {
		if OfferExpired(o, now) {
			if _, err := s.sweeper.ExpireOffer(ctx, o.ID); err != nil {
				return nil, err
			}
			expired = true
		}
	}
	if !expired {
		return offers, nil
	}
	return s.store.ListOffersForUser(ctx, userID)
}

func (s *service) toResponse(entry *WaitlistEntry, offer *TicketOffer) *WaitlistResponse {
	resp := &WaitlistResponse{
		ID:              entry.ID,
		EventID:         entry.EventID,
		Priority:        entry.Priority,
		Position:        entry.Position,
		TicketQuantity:  entry.TicketQuantity,
		Status:          entry.Status,
		SeatPreferences: entry.SeatPreferences,
		JoinedAt:        entry.JoinedAt,
		NotifiedAt:      entry.NotifiedAt,
		ExpiresAt:       entry.NotificationExpiresAt,
		CurrentOffer:    offer,
	}
	if entry.Status == EntryStatusActive {
		wait := s.resolver.EstimatedWait(entry.Position, entry.Priority)
		resp.EstimatedWait = wait.String()
		resp.EstimatedWaitMin = int(wait.Minutes())
	}
	return resp
}
