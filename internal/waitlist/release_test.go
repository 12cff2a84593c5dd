package waitlist_test

import (
	"context"
	"testing"
	"time"

	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func ptr[T any](v T) *T {
	return &v
}

func offeredEntryIDs(offers []waitlist.TicketOffer) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(offers))
	for _, o := range offers {
		out[o.EntryID] = true
	}
	return out
}

// joinAsVIP puts a high-spending user on the waitlist through the service
func (f *fixture) joinAsVIP(t *testing.T) *waitlist.WaitlistResponse {
	t.Helper()
	userID := uuid.New()
	f.directory.EXPECT().GetUserProfile(gomock.Any(), userID).
		Return(&waitlist.UserProfile{UserID: userID, TotalSpend: 7500}, nil)
	resp, err := f.engine.Service.JoinWaitlist(f.ctx, userID, &waitlist.JoinWaitlistRequest{
		EventID:        f.eventID(),
		TicketQuantity: 1,
	})
	require.NoError(t, err)
	require.Equal(t, waitlist.PriorityVIP, resp.Priority)
	return resp
}

func TestReleaseServesVIPFirst(t *testing.T) {
	f := newFixture(t)

	var standard []waitlist.WaitlistEntry
	for i := 0; i < 8; i++ {
		// standard entries have waited far longer than the VIPs
		standard = append(standard, f.seed(t, waitlist.PriorityStandard, time.Duration(10-i)*24*time.Hour))
	}
	vip1 := f.joinAsVIP(t)
	f.clock.Add(30 * time.Minute)
	vip2 := f.joinAsVIP(t)
	f.clock.Add(30 * time.Minute)
	now := f.clock.Now()

	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 5,
		Reason:           waitlist.ReleaseReasonCancellation,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, res.ReleasesCreated)
	assert.Equal(t, 5, res.UsersNotified)
	assert.Zero(t, res.TicketsRemaining)
	assert.False(t, res.NextBatchScheduled)

	// the two VIPs lead the batch, then the longest-waiting standard entries
	require.Len(t, res.Offers, 5)
	assert.Equal(t, vip1.ID, res.Offers[0].EntryID)
	assert.Equal(t, vip2.ID, res.Offers[1].EntryID)
	got := offeredEntryIDs(res.Offers)
	for _, e := range standard[:3] {
		assert.True(t, got[e.ID], "expected offer for %s", e.ID)
	}

	for _, o := range res.Offers {
		// default terms for everyone, VIPs included
		assert.Equal(t, waitlist.OfferStatusOffered, o.Status)
		assert.Equal(t, now.Add(24*time.Hour), o.ExpiresAt)
		assert.Equal(t, 100.0, o.OfferPrice)
		assert.Equal(t, waitlist.ReleaseReasonCancellation, o.ReleaseReason)

		e := f.entry(t, o.EntryID)
		assert.Equal(t, waitlist.EntryStatusNotified, e.Status)
		assert.Equal(t, 1, e.NotificationCount)
		require.NotNil(t, e.NotificationExpiresAt)
		assert.Equal(t, o.ExpiresAt, *e.NotificationExpiresAt)
	}

	assert.Len(t, f.notifications(waitlist.NotificationOfferAvailable), 5)
	assert.Len(t, f.activePositions(t), 5)
	requireDenseQueue(t, f.store, f.eventID())
}

func TestReleaseAppliesPriceCeilingAndTierTerms(t *testing.T) {
	f := newFixture(t)

	tooCheap := f.seed(t, waitlist.PriorityStandard, 5*time.Hour, func(e *waitlist.WaitlistEntry) {
		e.MaxPriceWilling = ptr(50.0)
	})
	ceiling := f.seed(t, waitlist.PriorityStandard, 4*time.Hour, func(e *waitlist.WaitlistEntry) {
		e.MaxPriceWilling = ptr(110.0)
	})
	vip := f.seed(t, waitlist.PriorityVIP, time.Hour, func(e *waitlist.WaitlistEntry) {
		e.ExtendedOfferHours = 12
		e.PriceDiscountPercent = 10
	})
	f.recalc(t)

	strategy := waitlist.DefaultReleaseStrategy()
	strategy.PriceFlexibilityPercent = 20

	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 3,
		Strategy:         &strategy,
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.ReleasesCreated)
	assert.Equal(t, 1, res.TicketsRemaining)
	assert.False(t, res.NextBatchScheduled)

	byEntry := make(map[uuid.UUID]waitlist.TicketOffer)
	for _, o := range res.Offers {
		byEntry[o.EntryID] = o
	}
	assert.NotContains(t, byEntry, tooCheap.ID)

	// min(ceiling 110, 100 * 1.2)
	assert.Equal(t, 110.0, byEntry[ceiling.ID].OfferPrice)
	assert.Equal(t, waitlist.ReleaseReasonManual, byEntry[ceiling.ID].ReleaseReason)

	// no ceiling keeps the base price; the tier takes 10% off and adds 12 hours
	assert.Equal(t, 90.0, byEntry[vip.ID].OfferPrice)
	assert.Equal(t, baseTime.Add(36*time.Hour), byEntry[vip.ID].ExpiresAt)
	require.NotNil(t, byEntry[vip.ID].OriginalPrice)
	assert.Equal(t, 100.0, *byEntry[vip.ID].OriginalPrice)

	assert.Equal(t, waitlist.EntryStatusActive, f.entry(t, tooCheap.ID).Status)
}

func TestReleaseSchedulesContinuationBatch(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.seed(t, waitlist.PriorityStandard, time.Duration(3-i)*time.Hour, func(e *waitlist.WaitlistEntry) {
			e.TicketQuantity = 2
		})
	}
	f.recalc(t)

	strategy := waitlist.DefaultReleaseStrategy()
	strategy.BatchSize = 1

	var payload waitlist.ReleaseBatchPayload
	f.scheduler.EXPECT().
		Enqueue(gomock.Any(), waitlist.TaskReleaseBatch, gomock.Any(), 30*time.Minute).
		DoAndReturn(func(_ context.Context, _ string, p interface{}, _ time.Duration) error {
			payload = p.(waitlist.ReleaseBatchPayload)
			return nil
		}).
		Times(1)

	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 5,
		Strategy:         &strategy,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ReleasesCreated)
	assert.Equal(t, 3, res.TicketsRemaining)
	assert.True(t, res.NextBatchScheduled)

	assert.Equal(t, f.eventID(), payload.EventID)
	assert.Equal(t, 3, payload.AvailableTickets)
	require.NotNil(t, payload.Strategy)
	assert.Equal(t, 1, payload.Strategy.BatchSize)

	// the continuation picks up where the first batch stopped; the last entry
	// needs 2 tickets but only 1 is left, so nothing further is queued
	res, err = f.engine.Releases.Release(f.ctx, payload.Request())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReleasesCreated)
	assert.Equal(t, 1, res.TicketsRemaining)
	assert.False(t, res.NextBatchScheduled)
	assert.Len(t, f.openOffers(), 2)
}

func TestReleaseSkipsEntriesThatDoNotFit(t *testing.T) {
	f := newFixture(t)
	big := f.seed(t, waitlist.PriorityVIP, time.Hour, func(e *waitlist.WaitlistEntry) {
		e.TicketQuantity = 4
	})
	small := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)

	// the VIP needs 4 tickets and stays queued; the leftover ticket fits nobody
	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 2,
	})
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, small.ID, res.Offers[0].EntryID)
	assert.Equal(t, 1, res.TicketsRemaining)
	assert.False(t, res.NextBatchScheduled)
	assert.Equal(t, waitlist.EntryStatusActive, f.entry(t, big.ID).Status)
}

func TestReleaseDoesNotQueueUnservableContinuations(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
	}{
		{
			name: "quantity never fits",
			setup: func(t *testing.T, f *fixture) {
				f.seed(t, waitlist.PriorityVIP, time.Hour, func(e *waitlist.WaitlistEntry) {
					e.TicketQuantity = 4
				})
			},
		},
		{
			name: "user at offer cap",
			setup: func(t *testing.T, f *fixture) {
				busy := f.seed(t, waitlist.PriorityVIP, time.Hour)
				require.NoError(t, f.store.CreateOffer(f.ctx, &waitlist.TicketOffer{
					EntryID:        uuid.New(),
					EventID:        uuid.New(),
					UserID:         busy.UserID,
					TicketQuantity: 1,
					OfferPrice:     80,
					ReleaseReason:  waitlist.ReleaseReasonManual,
					Status:         waitlist.OfferStatusOffered,
					ExpiresAt:      baseTime.Add(time.Hour),
				}))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(t, f)
			f.recalc(t)

			// the scheduler mock has no expectations: any Enqueue fails the test
			req := waitlist.ReleaseRequest{EventID: f.eventID(), AvailableTickets: 1}
			for i := 0; i < 3; i++ {
				res, err := f.engine.Releases.Release(f.ctx, req)
				require.NoError(t, err)
				assert.Zero(t, res.ReleasesCreated)
				assert.Equal(t, 1, res.TicketsRemaining)
				assert.False(t, res.NextBatchScheduled)
			}
			assert.Empty(t, f.openOffers())
		})
	}
}

func TestReleaseHonoursMaxOffersPerUser(t *testing.T) {
	f := newFixture(t)

	busy := f.seed(t, waitlist.PriorityVIP, 2*time.Hour)
	// the same user already holds an offer on another event
	require.NoError(t, f.store.CreateOffer(f.ctx, &waitlist.TicketOffer{
		EntryID:        uuid.New(),
		EventID:        uuid.New(),
		UserID:         busy.UserID,
		TicketQuantity: 1,
		OfferPrice:     80,
		ReleaseReason:  waitlist.ReleaseReasonManual,
		Status:         waitlist.OfferStatusOffered,
		ExpiresAt:      baseTime.Add(time.Hour),
	}))
	free := f.seed(t, waitlist.PriorityStandard, time.Hour)
	f.recalc(t)

	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, free.ID, res.Offers[0].EntryID)
	assert.Equal(t, waitlist.EntryStatusActive, f.entry(t, busy.ID).Status)
}

func TestReleasePrefersSeatMatchWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.seed(t, waitlist.PriorityStandard, 2*time.Hour, func(e *waitlist.WaitlistEntry) {
		e.SeatPreferences = waitlist.JSONMap{"section": "B"}
	})
	match := f.seed(t, waitlist.PriorityStandard, time.Hour, func(e *waitlist.WaitlistEntry) {
		e.SeatPreferences = waitlist.JSONMap{"sections": []interface{}{"c", "A"}}
	})
	f.recalc(t)

	strategy := waitlist.DefaultReleaseStrategy()
	strategy.ConsiderSeatPreferences = true

	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 1,
		Strategy:         &strategy,
		SeatSections:     []string{"a"},
	})
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, match.ID, res.Offers[0].EntryID)
}

func TestReleaseWithNoCandidates(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{
		EventID:          f.eventID(),
		AvailableTickets: 3,
	})
	require.NoError(t, err)
	assert.Zero(t, res.ReleasesCreated)
	assert.Zero(t, res.UsersNotified)
	assert.Equal(t, 3, res.TicketsRemaining)
	assert.False(t, res.NextBatchScheduled)
}

func TestReleaseRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	testCases := []struct {
		name string
		req  waitlist.ReleaseRequest
	}{
		{"no tickets", waitlist.ReleaseRequest{EventID: f.eventID()}},
		{"unknown reason", waitlist.ReleaseRequest{EventID: f.eventID(), AvailableTickets: 1, Reason: "GIVEAWAY"}},
		{"invalid strategy", waitlist.ReleaseRequest{EventID: f.eventID(), AvailableTickets: 1, Strategy: &waitlist.ReleaseStrategy{}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Releases.Release(f.ctx, tc.req)
			assert.True(t, errs.Is(err, errs.ErrValidation), "got %v", err)
		})
	}

	_, err := f.engine.Releases.Release(f.ctx, waitlist.ReleaseRequest{EventID: uuid.New(), AvailableTickets: 1})
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}
