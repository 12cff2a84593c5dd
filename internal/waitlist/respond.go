package waitlist

import (
	"context"
	"fmt"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
)

// ResponseAction is a user's answer to an offer
type ResponseAction string

const (
	ResponseAccept  ResponseAction = "accept"
	ResponseDecline ResponseAction = "decline"
)

// RespondRequest answers one offer. A non-nil UserID must own the offer.
type RespondRequest struct {
	OfferID       uuid.UUID
	UserID        uuid.UUID
	Action        ResponseAction
	DeclineReason string
}

// RespondResult is the outcome of a successful response
type RespondResult struct {
	Offer            TicketOffer    `json:"offer"`
	EntryStatus      EntryStatus    `json:"entry_status"`
	ReservedQuantity int            `json:"reserved_quantity"`
	OrderRef         string         `json:"order_ref,omitempty"`
	Rerelease        *ReleaseResult `json:"rerelease,omitempty"`
}

// OfferResponseHandler applies accept/decline atomically to an offer and its entry
type OfferResponseHandler struct {
	store        Store
	orders       OrderService
	releases     *ReleaseEngine
	recalculator *PositionRecalculator
	sweeper      *ExpirySweeper
	notifier     Notifier
	opts         options
}

func NewOfferResponseHandler(
	store Store,
	orders OrderService,
	releases *ReleaseEngine,
	recalculator *PositionRecalculator,
	sweeper *ExpirySweeper,
	notifier Notifier,
	opts ...Option,
) *OfferResponseHandler {
	return &OfferResponseHandler{
		store:        store,
		orders:       orders,
		releases:     releases,
		recalculator: recalculator,
		sweeper:      sweeper,
		notifier:     notifier,
		opts:         buildOptions("responder", opts),
	}
}

// Respond accepts or declines an offer. A response after the deadline
// expires the offer first and then fails with Expired.
func (h *OfferResponseHandler) Respond(ctx context.Context, req RespondRequest) (*RespondResult, error) {
	if req.Action != ResponseAccept && req.Action != ResponseDecline {
		return nil, errs.Validation("unknown response action %q", req.Action)
	}

	now := h.opts.clock.Now()
	var (
		result   *RespondResult
		overdue  bool
		orderRef string
	)

	err := h.store.WithTx(ctx, func(tx Store) error {
		offer, err := tx.GetOfferForUpdate(ctx, req.OfferID)
		if err != nil {
			return err
		}
		if req.UserID != uuid.Nil && offer.UserID != req.UserID {
			return errs.NotFound("ticket offer %s not found", req.OfferID)
		}
		if offer.Status != OfferStatusOffered {
			return errs.InvalidState("offer %s is %s", offer.ID, offer.Status)
		}
		if OfferExpired(*offer, now) {
			overdue = true
			return nil
		}

		entry, err := tx.GetEntryForUpdate(ctx, offer.EntryID)
		if err != nil {
			return err
		}

		switch req.Action {
		case ResponseAccept:
			result, err = h.accept(ctx, tx, offer, entry, &orderRef)
		case ResponseDecline:
			result, err = h.decline(ctx, tx, offer, entry, req.DeclineReason)
		}
		return err
	})

	if overdue {
		if _, expErr := h.sweeper.ExpireOffer(ctx, req.OfferID); expErr != nil {
			h.opts.logger.ErrorWithContext(ctx, "Failed to expire overdue offer", expErr, map[string]interface{}{
				"offer_id": req.OfferID.String(),
			})
		}
		return nil, errs.Expired("offer %s expired", req.OfferID)
	}
	if err != nil {
		if orderRef != "" {
			// Reserve is idempotent per offer, so a retried accept picks this order up again
			h.opts.logger.ErrorWithContext(ctx, "Order reserved but offer acceptance rolled back", err, map[string]interface{}{
				"offer_id":  req.OfferID.String(),
				"order_ref": orderRef,
			})
		}
		return nil, err
	}

	h.opts.logger.LogOfferResolved(ctx, result.Offer.ID.String(), result.Offer.EventID.String(), string(result.Offer.Status))

	if req.Action == ResponseAccept {
		notifyQuietly(ctx, h.notifier, h.opts, result.Offer.UserID, result.Offer.EventID, NotificationOfferAccepted, offerPayload(&result.Offer))
		return result, nil
	}

	notifyQuietly(ctx, h.notifier, h.opts, result.Offer.UserID, result.Offer.EventID, NotificationOfferDeclined, offerPayload(&result.Offer))
	result.Rerelease = h.refill(ctx, result.Offer)
	return result, nil
}

// accept reserves the order first and records its reference in reserved so
// the caller can report it if the transaction is rolled back afterwards
func (h *OfferResponseHandler) accept(ctx context.Context, tx Store, offer *TicketOffer, entry *WaitlistEntry, reserved *string) (*RespondResult, error) {
	now := h.opts.clock.Now()

	orderRef, err := h.orders.Reserve(ctx, ReservationRequest{
		EventID:  offer.EventID,
		UserID:   offer.UserID,
		OfferID:  offer.ID,
		Quantity: offer.TicketQuantity,
		Price:    offer.OfferPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reserve tickets for offer %s: %w", offer.ID, err)
	}
	*reserved = orderRef

	moved, err := tx.TransitionOffer(ctx, offer.ID, OfferStatusOffered, OfferTransition{
		To:       OfferStatusAccepted,
		At:       now,
		OrderRef: orderRef,
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, errs.InvalidState("offer %s is no longer offered", offer.ID)
	}

	entry.Status = EntryStatusConverted
	entry.ConvertedAt = &now
	entry.NotificationExpiresAt = nil
	if err := tx.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}

	offer.Status = OfferStatusAccepted
	offer.RespondedAt = &now
	offer.OrderRef = orderRef

	return &RespondResult{
		Offer:            *offer,
		EntryStatus:      entry.Status,
		ReservedQuantity: offer.TicketQuantity,
		OrderRef:         orderRef,
	}, nil
}

func (h *OfferResponseHandler) decline(ctx context.Context, tx Store, offer *TicketOffer, entry *WaitlistEntry, reason string) (*RespondResult, error) {
	now := h.opts.clock.Now()

	moved, err := tx.TransitionOffer(ctx, offer.ID, OfferStatusOffered, OfferTransition{
		To:            OfferStatusDeclined,
		At:            now,
		DeclineReason: reason,
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, errs.InvalidState("offer %s is no longer offered", offer.ID)
	}

	if entry.Status == EntryStatusNotified {
		reactivate(entry)
		if err := tx.SaveEntry(ctx, entry); err != nil {
			return nil, err
		}
	}

	offer.Status = OfferStatusDeclined
	offer.RespondedAt = &now
	offer.DeclineReason = reason

	return &RespondResult{
		Offer:       *offer,
		EntryStatus: entry.Status,
	}, nil
}

// refill recalculates and offers the declined tickets to the next candidate
func (h *OfferResponseHandler) refill(ctx context.Context, offer TicketOffer) *ReleaseResult {
	if h.recalculator != nil {
		if _, err := h.recalculator.Recalculate(ctx, offer.EventID); err != nil {
			h.opts.logger.ErrorWithContext(ctx, "Recalculation after decline failed", err, map[string]interface{}{
				"event_id": offer.EventID.String(),
			})
		}
	}
	if h.releases == nil {
		return nil
	}

	res, err := h.releases.Release(ctx, ReleaseRequest{
		EventID:          offer.EventID,
		AvailableTickets: offer.TicketQuantity,
		Reason:           offer.ReleaseReason,
		ExcludeEntryIDs:  []uuid.UUID{offer.EntryID},
	})
	if err != nil {
		h.opts.logger.ErrorWithContext(ctx, "Re-release after decline failed", err, map[string]interface{}{
			"event_id": offer.EventID.String(),
		})
		return nil
	}
	return res
}
