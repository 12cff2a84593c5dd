package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo keeps bookings in memory and tracks per-event capacity
type fakeRepo struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]*Booking
	capacity  map[uuid.UUID]int
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bookings: map[uuid.UUID]*Booking{}, capacity: map[uuid.UUID]int{}}
}

func (f *fakeRepo) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bookings[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, errs.NotFound("booking %s not found", id)
}

func (f *fakeRepo) GetBookingByOfferID(_ context.Context, offerID uuid.UUID) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.OfferID != nil && *b.OfferID == offerID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, errs.NotFound("no booking for offer %s", offerID)
}

func (f *fakeRepo) GetUserBookings(_ context.Context, userID uuid.UUID, _ BookingListQuery) ([]Booking, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Booking
	for _, b := range f.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepo) GetUserStats(context.Context, uuid.UUID) (*UserStats, error) {
	return &UserStats{}, nil
}

func (f *fakeRepo) CreateBookingWithCapacityCheck(_ context.Context, b *Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.capacity[b.EventID] < b.Quantity {
		return errs.Conflict("insufficient capacity")
	}
	f.capacity[b.EventID] -= b.Quantity
	b.ID = uuid.New()
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeRepo) CancelBooking(_ context.Context, id uuid.UUID, at time.Time) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, errs.NotFound("booking %s not found", id)
	}
	b.Status = StatusCancelled
	b.CancelledAt = &at
	f.capacity[b.EventID] += b.Quantity
	cp := *b
	return &cp, nil
}

type releaseCall struct {
	eventID  uuid.UUID
	quantity int
}

type fakeReleaser struct {
	calls []releaseCall
	err   error
}

func (f *fakeReleaser) ReleaseCancelled(_ context.Context, eventID uuid.UUID, quantity int) error {
	f.calls = append(f.calls, releaseCall{eventID, quantity})
	return f.err
}

type fakeProfiles struct {
	invalidated []uuid.UUID
}

func (f *fakeProfiles) InvalidateProfile(_ context.Context, userID uuid.UUID) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestReserveCreatesWaitlistBooking(t *testing.T) {
	repo := newFakeRepo()
	profiles := &fakeProfiles{}
	svc := NewService(repo, nil, profiles, clock.NewMockClock(now), logger.Discard())

	eventID, userID, offerID := uuid.New(), uuid.New(), uuid.New()
	repo.capacity[eventID] = 5

	ref, err := svc.Reserve(context.Background(), waitlist.ReservationRequest{
		EventID: eventID, UserID: userID, OfferID: offerID, Quantity: 2, Price: 45.5,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^EVT-20250601-[A-Z]{6}$`, ref)

	booking, err := repo.GetBookingByOfferID(context.Background(), offerID)
	require.NoError(t, err)
	assert.Equal(t, 91.0, booking.TotalPrice)
	assert.Equal(t, SourceWaitlist, booking.Source)
	assert.Equal(t, StatusConfirmed, booking.Status)
	assert.Equal(t, 3, repo.capacity[eventID])
	assert.Equal(t, []uuid.UUID{userID}, profiles.invalidated)

	// same offer again is idempotent
	again, err := svc.Reserve(context.Background(), waitlist.ReservationRequest{
		EventID: eventID, UserID: userID, OfferID: offerID, Quantity: 2, Price: 45.5,
	})
	require.NoError(t, err)
	assert.Equal(t, ref, again)
	assert.Equal(t, 3, repo.capacity[eventID])
}

func TestReserveRejections(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil, clock.NewMockClock(now), logger.Discard())
	eventID := uuid.New()
	repo.capacity[eventID] = 1

	_, err := svc.Reserve(context.Background(), waitlist.ReservationRequest{EventID: eventID, OfferID: uuid.New(), Quantity: 0})
	assert.True(t, errs.Is(err, errs.ErrValidation))

	_, err = svc.Reserve(context.Background(), waitlist.ReservationRequest{EventID: eventID, OfferID: uuid.New(), Quantity: 2})
	assert.True(t, errs.Is(err, errs.ErrConflict))

	repo.createErr = errors.New("connection reset")
	_, err = svc.Reserve(context.Background(), waitlist.ReservationRequest{EventID: eventID, OfferID: uuid.New(), Quantity: 1})
	assert.EqualError(t, err, "connection reset")
}

func TestCancelBookingReleasesToWaitlist(t *testing.T) {
	repo := newFakeRepo()
	releaser := &fakeReleaser{}
	profiles := &fakeProfiles{}
	svc := NewService(repo, releaser, profiles, clock.NewMockClock(now), logger.Discard())
	ctx := context.Background()

	eventID, owner := uuid.New(), uuid.New()
	repo.capacity[eventID] = 4
	_, err := svc.Reserve(ctx, waitlist.ReservationRequest{EventID: eventID, UserID: owner, OfferID: uuid.New(), Quantity: 3, Price: 10})
	require.NoError(t, err)
	page, err := svc.GetUserBookings(ctx, owner, BookingListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 1)
	bookingID := page.Bookings[0].ID

	// someone else's booking reads as missing
	_, err = svc.CancelBooking(ctx, bookingID, uuid.New(), false)
	assert.True(t, errs.Is(err, errs.ErrNotFound))

	cancelled, err := svc.CancelBooking(ctx, bookingID, owner, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, now, *cancelled.CancelledAt)
	assert.Equal(t, []releaseCall{{eventID, 3}}, releaser.calls)
	// spend changed on both the booking and the cancellation
	assert.Equal(t, []uuid.UUID{owner, owner}, profiles.invalidated)

	_, err = svc.CancelBooking(ctx, bookingID, owner, false)
	assert.True(t, errs.Is(err, errs.ErrInvalidState))
}

func TestCancelBookingSurvivesReleaseFailure(t *testing.T) {
	repo := newFakeRepo()
	releaser := &fakeReleaser{err: errors.New("queue down")}
	svc := NewService(repo, releaser, nil, clock.NewMockClock(now), logger.Discard())
	ctx := context.Background()

	eventID := uuid.New()
	repo.capacity[eventID] = 1
	_, err := svc.Reserve(ctx, waitlist.ReservationRequest{EventID: eventID, UserID: uuid.New(), OfferID: uuid.New(), Quantity: 1})
	require.NoError(t, err)

	var id uuid.UUID
	for k := range repo.bookings {
		id = k
	}
	// admins may cancel any booking
	cancelled, err := svc.CancelBooking(ctx, id, uuid.New(), true)
	require.NoError(t, err)
	assert.True(t, cancelled.IsCancelled())
	assert.Len(t, releaser.calls, 1)
}

func TestCalculateTotalPages(t *testing.T) {
	assert.Equal(t, 0, CalculateTotalPages(10, 0))
	assert.Equal(t, 1, CalculateTotalPages(10, 10))
	assert.Equal(t, 2, CalculateTotalPages(11, 10))
}
