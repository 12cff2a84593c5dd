//go:build integration

package waitlist_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"evently-waitlist/internal/shared/constants"
	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/shared/testutil"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var joinedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type RepositorySuite struct {
	suite.Suite
	ctx   context.Context
	store waitlist.Store
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	s.store = waitlist.NewRepository(testutil.Postgres(s.T()))
}

func (s *RepositorySuite) entry(eventID uuid.UUID, tier waitlist.Priority, joined time.Time) *waitlist.WaitlistEntry {
	e := &waitlist.WaitlistEntry{
		UserID:         uuid.New(),
		EventID:        eventID,
		Priority:       tier,
		PriorityRank:   tier.Rank(),
		Status:         waitlist.EntryStatusActive,
		TicketQuantity: 1,
		JoinedAt:       joined,
	}
	s.Require().NoError(s.store.CreateEntry(s.ctx, e))
	return e
}

func (s *RepositorySuite) TestOpenEntryIsUniquePerUserAndEvent() {
	eventID := uuid.New()
	first := s.entry(eventID, waitlist.PriorityStandard, joinedAt)

	dup := *first
	dup.ID = uuid.Nil
	err := s.store.CreateEntry(s.ctx, &dup)
	s.True(errs.Is(err, errs.ErrConflict), "got %v", err)

	first.Status = waitlist.EntryStatusRemoved
	s.Require().NoError(s.store.SaveEntry(s.ctx, first))

	dup.ID = uuid.Nil
	s.NoError(s.store.CreateEntry(s.ctx, &dup))
}

func (s *RepositorySuite) TestActiveEntriesComeBackInQueueOrder() {
	eventID := uuid.New()
	late := s.entry(eventID, waitlist.PriorityStandard, joinedAt.Add(time.Hour))
	vip := s.entry(eventID, waitlist.PriorityVIP, joinedAt.Add(2*time.Hour))
	early := s.entry(eventID, waitlist.PriorityStandard, joinedAt)
	premium := s.entry(eventID, waitlist.PriorityPremium, joinedAt.Add(3*time.Hour))

	active, err := s.store.ListActiveEntries(s.ctx, eventID)
	s.Require().NoError(err)

	got := make([]uuid.UUID, 0, len(active))
	for _, e := range active {
		got = append(got, e.ID)
	}
	want := []uuid.UUID{vip.ID, premium.ID, early.ID, late.ID}
	if diff := cmp.Diff(want, got); diff != "" {
		s.T().Errorf("queue order mismatch (-want +got):\n%s", diff)
	}
}

func (s *RepositorySuite) TestTransitionOfferHasOneWinner() {
	eventID := uuid.New()
	e := s.entry(eventID, waitlist.PriorityStandard, joinedAt)
	offer := &waitlist.TicketOffer{
		EntryID:        e.ID,
		EventID:        eventID,
		UserID:         e.UserID,
		TicketQuantity: 1,
		OfferPrice:     80,
		ReleaseReason:  waitlist.ReleaseReasonCancellation,
		Status:         waitlist.OfferStatusOffered,
		ExpiresAt:      joinedAt.Add(24 * time.Hour),
	}
	s.Require().NoError(s.store.CreateOffer(s.ctx, offer))

	second := *offer
	second.ID = uuid.Nil
	s.True(errs.Is(s.store.CreateOffer(s.ctx, &second), errs.ErrConflict))

	var (
		wg    sync.WaitGroup
		moved atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.TransitionOffer(s.ctx, offer.ID, waitlist.OfferStatusOffered,
				waitlist.OfferTransition{To: waitlist.OfferStatusExpired, At: joinedAt})
			if err == nil && ok {
				moved.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), moved.Load())

	held, err := s.store.SumOpenOfferTickets(s.ctx, eventID)
	s.Require().NoError(err)
	s.Zero(held)
}

func (s *RepositorySuite) TestWithTxRollsBack() {
	eventID := uuid.New()
	boom := errors.New("boom")

	err := s.store.WithTx(s.ctx, func(tx waitlist.Store) error {
		e := &waitlist.WaitlistEntry{
			UserID: uuid.New(), EventID: eventID, Priority: waitlist.PriorityStandard,
			PriorityRank: waitlist.PriorityStandard.Rank(), Status: waitlist.EntryStatusActive,
			TicketQuantity: 1, JoinedAt: joinedAt,
		}
		if err := tx.CreateEntry(s.ctx, e); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	counts, err := s.store.CountEntriesByStatus(s.ctx, eventID)
	s.Require().NoError(err)
	s.Zero(counts[waitlist.EntryStatusActive])
}

func TestRedisLockerExcludesOtherHolders(t *testing.T) {
	client := testutil.Redis(t)
	eventID := uuid.New()

	// two lockers stand in for two service instances
	a := waitlist.NewRedisLocker(client, 5*time.Second, 100*time.Millisecond, logger.Discard())
	b := waitlist.NewRedisLocker(client, 5*time.Second, 100*time.Millisecond, logger.Discard())

	unlock, err := a.Lock(context.Background(), eventID)
	require.NoError(t, err)

	_, err = b.Lock(context.Background(), eventID)
	assert.Error(t, err, "second instance must not acquire a held lock")

	unlock()
	unlockB, err := b.Lock(context.Background(), eventID)
	require.NoError(t, err)
	unlockB()
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	shared := testutil.Redis(t)
	eventID := uuid.New()

	t.Run("client gone before unlock", func(t *testing.T) {
		var logs bytes.Buffer
		client := redis.NewClient(shared.Options())
		locker := waitlist.NewRedisLocker(client, 2*time.Second, 100*time.Millisecond, logger.NewWithWriter(&logs, "warn"))

		unlock, err := locker.Lock(context.Background(), eventID)
		require.NoError(t, err)
		require.NoError(t, client.Close())
		unlock()

		assert.Contains(t, logs.String(), "Failed to release event lock")
		assert.Contains(t, logs.String(), eventID.String())

		// the key outlives the failed release until its TTL
		require.Eventually(t, func() bool {
			return shared.Exists(context.Background(), constants.BuildWaitlistLockKey(eventID.String())).Val() == 0
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("lock taken over after expiry", func(t *testing.T) {
		var logs bytes.Buffer
		locker := waitlist.NewRedisLocker(shared, 2*time.Second, 100*time.Millisecond, logger.NewWithWriter(&logs, "warn"))

		unlock, err := locker.Lock(context.Background(), eventID)
		require.NoError(t, err)
		key := constants.BuildWaitlistLockKey(eventID.String())
		require.NoError(t, shared.Set(context.Background(), key, "another-holder", time.Second).Err())
		unlock()

		assert.Contains(t, logs.String(), "Event lock expired before release")
		assert.Equal(t, "another-holder", shared.Get(context.Background(), key).Val())
	})
}
