package waitlist

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func queueEntry(p Priority, joined time.Time) WaitlistEntry {
	return WaitlistEntry{ID: uuid.New(), Priority: p, Status: EntryStatusActive, JoinedAt: joined, TicketQuantity: 1}
}

func TestQueueLess(t *testing.T) {
	vip := queueEntry(PriorityVIP, t0.Add(time.Hour))
	early := queueEntry(PriorityStandard, t0)
	late := queueEntry(PriorityStandard, t0.Add(time.Minute))

	assert.True(t, QueueLess(vip, early), "tier beats tenure")
	assert.True(t, QueueLess(early, late))
	assert.False(t, QueueLess(late, early))

	// identical timestamps fall back to the id bytes
	a := queueEntry(PriorityLoyalty, t0)
	b := queueEntry(PriorityLoyalty, t0)
	a.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	assert.True(t, QueueLess(a, b))
	assert.False(t, QueueLess(b, a))
	assert.False(t, QueueLess(a, a))
}

func TestAssignPositionsReturnsOnlyChanges(t *testing.T) {
	entries := []WaitlistEntry{
		queueEntry(PriorityStandard, t0.Add(2*time.Hour)),
		queueEntry(PriorityPremium, t0.Add(time.Hour)),
		queueEntry(PriorityStandard, t0),
	}
	entries[0].Position = 2
	entries[1].Position = 1
	entries[2].Position = 1

	SortQueue(entries)
	changes := AssignPositions(entries)

	require.Len(t, changes, 2)
	assert.Equal(t, PositionChange{EntryID: entries[1].ID, OldPosition: 1, NewPosition: 2}, changes[0])
	assert.Equal(t, 3, changes[1].NewPosition)
	assert.Empty(t, AssignPositions(nil))
}

func TestWaitingDays(t *testing.T) {
	e := queueEntry(PriorityStandard, t0)
	assert.Equal(t, 1.5, WaitingDays(e, t0.Add(36*time.Hour)))
	assert.Zero(t, WaitingDays(e, t0.Add(-time.Hour)))
}

func TestSelectionScore(t *testing.T) {
	weights := DefaultReleaseStrategy().PriorityWeights

	vip := queueEntry(PriorityVIP, t0)
	vip.Position = 1
	assert.InDelta(t, 10.99, SelectionScore(vip, weights, t0, false), 1e-9)

	standard := queueEntry(PriorityStandard, t0)
	standard.Position = 150
	// 1 + 10 days * 0.1, nothing for a position past 100, plus the seat bonus
	assert.InDelta(t, 2.5, SelectionScore(standard, weights, t0.Add(240*time.Hour), true), 1e-9)
}

func TestOfferPrice(t *testing.T) {
	testCases := []struct {
		name     string
		base     float64
		max      *float64
		flex     float64
		discount float64
		want     float64
	}{
		{"base price", 100, nil, 0, 0, 100},
		{"flexibility needs a ceiling", 100, nil, 20, 0, 100},
		{"ceiling inside band", 100, ptrTo(110.0), 20, 0, 110},
		{"band caps the ceiling", 100, ptrTo(200.0), 20, 0, 120},
		{"ceiling below base", 100, ptrTo(80.0), 0, 0, 80},
		{"tier discount", 100, nil, 0, 10, 90},
		{"rounded to cents", 59.99, nil, 0, 5, 56.99},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, OfferPrice(tc.base, tc.max, tc.flex, tc.discount), 1e-9)
		})
	}
}

func TestPriceEligible(t *testing.T) {
	e := queueEntry(PriorityStandard, t0)
	assert.True(t, PriceEligible(e, 1e6))

	e.MaxPriceWilling = ptrTo(75.0)
	assert.True(t, PriceEligible(e, 75))
	assert.False(t, PriceEligible(e, 75.01))
}

func TestSeatPreferenceMatches(t *testing.T) {
	assert.True(t, SeatPreferenceMatches(JSONMap{"section": "Floor"}, []string{"floor", "balcony"}))
	assert.True(t, SeatPreferenceMatches(JSONMap{"sections": []string{"A", "B"}}, []string{"b"}))
	assert.True(t, SeatPreferenceMatches(JSONMap{"sections": []interface{}{"x", 3, "C"}}, []string{"c"}))
	assert.False(t, SeatPreferenceMatches(JSONMap{"section": "A"}, []string{"B"}))
	assert.False(t, SeatPreferenceMatches(nil, []string{"A"}))
	assert.False(t, SeatPreferenceMatches(JSONMap{"section": "A"}, nil))
}

func TestOfferExpiryHelpers(t *testing.T) {
	o := TicketOffer{Status: OfferStatusOffered, ExpiresAt: t0.Add(time.Hour)}

	assert.False(t, OfferExpired(o, t0))
	assert.False(t, OfferExpired(o, t0.Add(time.Hour)), "deadline itself is still valid")
	assert.True(t, OfferExpired(o, t0.Add(time.Hour+time.Nanosecond)))
	assert.Equal(t, time.Hour, OfferTimeRemaining(o, t0))
	assert.Zero(t, OfferTimeRemaining(o, t0.Add(2*time.Hour)))

	o.Status = OfferStatusAccepted
	assert.False(t, OfferExpired(o, t0.Add(48*time.Hour)))
	assert.Zero(t, OfferTimeRemaining(o, t0))
}

func TestMoveWithinTier(t *testing.T) {
	build := func() []WaitlistEntry {
		q := []WaitlistEntry{
			queueEntry(PriorityVIP, t0.Add(5*time.Hour)),
			queueEntry(PriorityStandard, t0),
			queueEntry(PriorityStandard, t0.Add(time.Hour)),
			queueEntry(PriorityStandard, t0.Add(2*time.Hour)),
			queueEntry(PriorityLoyalty, t0),
		}
		SortQueue(q)
		return q
	}

	t.Run("front of tier", func(t *testing.T) {
		q := build()
		target := q[4]
		require.Equal(t, PriorityStandard, target.Priority)

		joined, changed, err := moveWithinTier(q, target.ID, PositionAdjustment{Mode: AdjustFront})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, t0.Add(-time.Millisecond), joined)
		assert.Equal(t, target.ID, q[2].ID)
	})

	t.Run("shift lands between neighbours", func(t *testing.T) {
		q := build()
		target := q[2]

		joined, changed, err := moveWithinTier(q, target.ID, PositionAdjustment{Mode: AdjustShift, Value: 1})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, t0.Add(90*time.Minute), joined)
		assert.Equal(t, target.ID, q[3].ID)
	})

	t.Run("set beyond the tier is clamped", func(t *testing.T) {
		q := build()
		target := q[2]

		joined, changed, err := moveWithinTier(q, target.ID, PositionAdjustment{Mode: AdjustSet, Value: 99})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, t0.Add(2*time.Hour+time.Millisecond), joined)
		assert.Equal(t, target.ID, q[4].ID)
	})

	t.Run("single member tier", func(t *testing.T) {
		q := build()
		_, changed, err := moveWithinTier(q, q[0].ID, PositionAdjustment{Mode: AdjustBack})
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, _, err := moveWithinTier(build(), uuid.New(), PositionAdjustment{Mode: AdjustFront})
		assert.Error(t, err)
	})
}

func ptrTo[T any](v T) *T {
	return &v
}
