package waitlist_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// offerToHead releases one ticket and returns the offer made to the head of the queue
func offerToHead(t *testing.T, f *fixture) waitlist.TicketOffer {
	t.Helper()
	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 1,
		Reason:           waitlist.ReleaseReasonRefund,
	})
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	return res.Offers[0]
}

func TestRespondAcceptConvertsEntry(t *testing.T) {
	f := newFixture(t)
	head := f.seed(t, waitlist.PriorityStandard, 3*time.Hour, func(e *waitlist.WaitlistEntry) {
		e.TicketQuantity = 2
	})
	f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)

	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{EventID: f.eventID(), AvailableTickets: 2})
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	offer := res.Offers[0]

	f.orders.EXPECT().Reserve(gomock.Any(), waitlist.ReservationRequest{
		EventID:  f.eventID(),
		UserID:   head.UserID,
		OfferID:  offer.ID,
		Quantity: 2,
		Price:    100,
	}).Return("ORD-1001", nil)

	f.clock.Add(2 * time.Hour)
	result, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
		OfferID: offer.ID,
		UserID:  head.UserID,
		Action:  waitlist.ResponseAccept,
	})
	require.NoError(t, err)

	assert.Equal(t, waitlist.OfferStatusAccepted, result.Offer.Status)
	assert.Equal(t, waitlist.EntryStatusConverted, result.EntryStatus)
	assert.Equal(t, 2, result.ReservedQuantity)
	assert.Equal(t, "ORD-1001", result.OrderRef)
	assert.Nil(t, result.Rerelease)

	stored := f.offer(t, offer.ID)
	assert.Equal(t, waitlist.OfferStatusAccepted, stored.Status)
	assert.Equal(t, "ORD-1001", stored.OrderRef)
	require.NotNil(t, stored.RespondedAt)
	assert.Equal(t, baseTime.Add(2*time.Hour), *stored.RespondedAt)

	entry := f.entry(t, head.ID)
	assert.Equal(t, waitlist.EntryStatusConverted, entry.Status)
	require.NotNil(t, entry.ConvertedAt)
	assert.Len(t, f.notifications(waitlist.NotificationOfferAccepted), 1)
}

func TestRespondAcceptRollsBackWhenReservationFails(t *testing.T) {
	f := newFixture(t)
	head := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)
	offer := offerToHead(t, f)

	f.orders.EXPECT().Reserve(gomock.Any(), gomock.Any()).Return("", errors.New("inventory service down"))

	_, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
		OfferID: offer.ID,
		UserID:  head.UserID,
		Action:  waitlist.ResponseAccept,
	})
	require.Error(t, err)

	assert.Equal(t, waitlist.OfferStatusOffered, f.offer(t, offer.ID).Status)
	assert.Equal(t, waitlist.EntryStatusNotified, f.entry(t, head.ID).Status)
}

// saveFailingStore fails entry writes once failing is set, inside transactions too
type saveFailingStore struct {
	waitlist.Store
	failing *atomic.Bool
}

func (s saveFailingStore) WithTx(ctx context.Context, fn func(tx waitlist.Store) error) error {
	return s.Store.WithTx(ctx, func(tx waitlist.Store) error {
		return fn(saveFailingStore{Store: tx, failing: s.failing})
	})
}

func (s saveFailingStore) SaveEntry(ctx context.Context, entry *waitlist.WaitlistEntry) error {
	if s.failing.Load() {
		return errors.New("connection reset")
	}
	return s.Store.SaveEntry(ctx, entry)
}

func TestRespondAcceptLogsOrderLeftByRollback(t *testing.T) {
	var (
		failing atomic.Bool
		logs    bytes.Buffer
	)
	f := newFixture(t, func(d *waitlist.EngineDeps) {
		d.Store = saveFailingStore{Store: d.Store, failing: &failing}
		d.Logger = logger.NewWithWriter(&logs, "error")
	})
	head := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)
	offer := offerToHead(t, f)

	f.orders.EXPECT().Reserve(gomock.Any(), gomock.Any()).Return("ORD-9", nil)
	failing.Store(true)

	_, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
		OfferID: offer.ID,
		UserID:  head.UserID,
		Action:  waitlist.ResponseAccept,
	})
	require.Error(t, err)

	assert.Equal(t, waitlist.OfferStatusOffered, f.offer(t, offer.ID).Status)
	assert.Equal(t, waitlist.EntryStatusNotified, f.entry(t, head.ID).Status)
	assert.Contains(t, logs.String(), "Order reserved but offer acceptance rolled back")
	assert.Contains(t, logs.String(), "ORD-9")
	assert.Contains(t, logs.String(), offer.ID.String())
}

func TestRespondDeclineReoffersToNextCandidate(t *testing.T) {
	f := newFixture(t)
	first := f.seed(t, waitlist.PriorityStandard, 3*time.Hour)
	second := f.seed(t, waitlist.PriorityStandard, 2*time.Hour)
	third := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)

	offer := offerToHead(t, f)
	require.Equal(t, first.ID, offer.EntryID)

	result, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
		OfferID:       offer.ID,
		UserID:        first.UserID,
		Action:        waitlist.ResponseDecline,
		DeclineReason: "can't make it",
	})
	require.NoError(t, err)

	assert.Equal(t, waitlist.OfferStatusDeclined, result.Offer.Status)
	assert.Equal(t, waitlist.EntryStatusActive, result.EntryStatus)
	stored := f.offer(t, offer.ID)
	assert.Equal(t, "can't make it", stored.DeclineReason)

	// the freed ticket went to the next entry within the same call
	require.NotNil(t, result.Rerelease)
	require.Len(t, result.Rerelease.Offers, 1)
	assert.Equal(t, second.ID, result.Rerelease.Offers[0].EntryID)
	assert.Equal(t, waitlist.ReleaseReasonRefund, result.Rerelease.Offers[0].ReleaseReason)

	declined := f.entry(t, first.ID)
	assert.Equal(t, waitlist.EntryStatusActive, declined.Status)
	assert.Nil(t, declined.NotifiedAt)
	assert.Nil(t, declined.NotificationExpiresAt)

	open := f.openOffers()
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].EntryID)

	// the decliner is back at the head; the third entry follows
	positions := f.activePositions(t)
	assert.Equal(t, 1, positions[first.ID])
	assert.Equal(t, 2, positions[third.ID])
	requireDenseQueue(t, f.store, f.eventID())
}

func TestRespondAfterDeadlineExpiresOffer(t *testing.T) {
	f := newFixture(t)
	late := f.seed(t, waitlist.PriorityStandard, 2*time.Hour)
	next := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)
	offer := offerToHead(t, f)

	f.clock.Add(25 * time.Hour)

	// no reservation is attempted
	_, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
		OfferID: offer.ID,
		UserID:  late.UserID,
		Action:  waitlist.ResponseAccept,
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrExpired))
	assert.False(t, errs.Is(err, errs.ErrInvalidState))

	assert.Equal(t, waitlist.OfferStatusExpired, f.offer(t, offer.ID).Status)
	assert.Equal(t, waitlist.EntryStatusActive, f.entry(t, late.ID).Status)

	open := f.openOffers()
	require.Len(t, open, 1)
	assert.Equal(t, next.ID, open[0].EntryID)
	assert.Len(t, f.notifications(waitlist.NotificationOfferExpired), 1)
}

func TestRespondPreconditions(t *testing.T) {
	f := newFixture(t)
	head := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)
	offer := offerToHead(t, f)

	t.Run("unknown offer", func(t *testing.T) {
		_, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
			OfferID: uuid.New(),
			Action:  waitlist.ResponseDecline,
		})
		assert.True(t, errs.Is(err, errs.ErrNotFound))
	})

	t.Run("someone else's offer", func(t *testing.T) {
		_, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
			OfferID: offer.ID,
			UserID:  uuid.New(),
			Action:  waitlist.ResponseDecline,
		})
		assert.True(t, errs.Is(err, errs.ErrNotFound))
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
			OfferID: offer.ID,
			Action:  "maybe",
		})
		assert.True(t, errs.Is(err, errs.ErrValidation))
	})

	t.Run("already resolved", func(t *testing.T) {
		_, err := f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
			OfferID: offer.ID,
			UserID:  head.UserID,
			Action:  waitlist.ResponseDecline,
		})
		require.NoError(t, err)

		_, err = f.engine.Responses.Respond(f.ctx, waitlist.RespondRequest{
			OfferID: offer.ID,
			UserID:  head.UserID,
			Action:  waitlist.ResponseDecline,
		})
		assert.True(t, errs.Is(err, errs.ErrInvalidState))
	})
}

func TestConcurrentResponsesResolveOnce(t *testing.T) {
	f := newFixture(t)
	head := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)
	offer := offerToHead(t, f)

	f.orders.EXPECT().Reserve(gomock.Any(), gomock.Any()).Return("ORD-1", nil).MaxTimes(1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, action := range []waitlist.ResponseAction{waitlist.ResponseAccept, waitlist.ResponseDecline, waitlist.ResponseDecline} {
		wg.Add(1)
		go func(action waitlist.ResponseAction) {
			defer wg.Done()
			_, err := f.engine.Responses.Respond(context.Background(), waitlist.RespondRequest{
				OfferID: offer.ID,
				UserID:  head.UserID,
				Action:  action,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, errs.Is(err, errs.ErrInvalidState), "unexpected error %v", err)
		}(action)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.NotEqual(t, waitlist.OfferStatusOffered, f.offer(t, offer.ID).Status)
}
