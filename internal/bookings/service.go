package bookings

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
)

// WaitlistReleaser hands tickets freed by a cancellation to the waitlist
// (to avoid a dependency from bookings on the job queue)
type WaitlistReleaser interface {
	ReleaseCancelled(ctx context.Context, eventID uuid.UUID, quantity int) error
}

// ProfileInvalidator drops cached user profiles whose spend just changed
type ProfileInvalidator interface {
	InvalidateProfile(ctx context.Context, userID uuid.UUID) error
}

// Service interface defines the contract for booking business logic.
// It satisfies waitlist.OrderService so accepted offers become bookings.
type Service interface {
	Reserve(ctx context.Context, req waitlist.ReservationRequest) (string, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) (*PaginatedBookings, error)
	CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, asAdmin bool) (*Booking, error)
}

type service struct {
	repo     Repository
	releaser WaitlistReleaser
	profiles ProfileInvalidator
	clock    clock.Clock
	logger   *logger.Logger
}

// NewService creates a new booking service instance. releaser and profiles may be nil.
func NewService(repo Repository, releaser WaitlistReleaser, profiles ProfileInvalidator, clk clock.Clock, log *logger.Logger) Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &service{
		repo:     repo,
		releaser: releaser,
		profiles: profiles,
		clock:    clk,
		logger:   logger.OrDefault(log).WithComponent("bookings"),
	}
}

// Reserve books the tickets of an accepted offer. Repeating the call for the
// same offer returns the existing booking reference.
func (s *service) Reserve(ctx context.Context, req waitlist.ReservationRequest) (string, error) {
	if req.Quantity < 1 {
		return "", errs.Validation("quantity must be positive")
	}

	if existing, err := s.repo.GetBookingByOfferID(ctx, req.OfferID); err == nil {
		return existing.BookingRef, nil
	} else if !errs.Is(err, errs.ErrNotFound) {
		return "", err
	}

	bookingRef, err := s.generateBookingReference()
	if err != nil {
		return "", fmt.Errorf("failed to generate booking reference: %w", err)
	}

	offerID := req.OfferID
	booking := &Booking{
		UserID:     req.UserID,
		EventID:    req.EventID,
		OfferID:    &offerID,
		Quantity:   req.Quantity,
		UnitPrice:  req.Price,
		TotalPrice: req.Price * float64(req.Quantity),
		Status:     StatusConfirmed,
		Source:     SourceWaitlist,
		BookingRef: bookingRef,
	}

	if err := s.repo.CreateBookingWithCapacityCheck(ctx, booking); err != nil {
		if errs.Is(err, errs.ErrConflict) {
			// a concurrent accept of the same offer won the insert
			if existing, lookupErr := s.repo.GetBookingByOfferID(ctx, req.OfferID); lookupErr == nil {
				return existing.BookingRef, nil
			}
		}
		return "", err
	}

	s.invalidateProfile(ctx, req.UserID)
	s.logger.InfoWithContext(ctx, "Booking created from waitlist offer", map[string]interface{}{
		"booking_id":  booking.ID.String(),
		"booking_ref": booking.BookingRef,
		"offer_id":    req.OfferID.String(),
		"event_id":    req.EventID.String(),
		"quantity":    req.Quantity,
	})
	return booking.BookingRef, nil
}

func (s *service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	return s.repo.GetBookingByID(ctx, bookingID)
}

func (s *service) GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) (*PaginatedBookings, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	bookings, total, err := s.repo.GetUserBookings(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return &PaginatedBookings{
		Bookings:   bookings,
		TotalCount: total,
		Page:       query.Page,
		Limit:      query.Limit,
		TotalPages: CalculateTotalPages(total, query.Limit),
	}, nil
}

// CancelBooking cancels a booking and offers the freed tickets to the waitlist
func (s *service) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID, asAdmin bool) (*Booking, error) {
	booking, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !asAdmin && booking.UserID != userID {
		return nil, errs.NotFound("booking %s not found", bookingID)
	}
	if booking.IsCancelled() {
		return nil, errs.InvalidState("booking %s is already cancelled", bookingID)
	}

	cancelled, err := s.repo.CancelBooking(ctx, bookingID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.invalidateProfile(ctx, cancelled.UserID)

	if s.releaser != nil {
		// the booking stays cancelled even if the hand-off fails; the
		// tickets are then bookable directly
		if err := s.releaser.ReleaseCancelled(ctx, cancelled.EventID, cancelled.Quantity); err != nil {
			s.logger.ErrorWithContext(ctx, "Failed to release cancelled tickets to waitlist", err, map[string]interface{}{
				"booking_id": cancelled.ID.String(),
				"event_id":   cancelled.EventID.String(),
				"quantity":   cancelled.Quantity,
			})
		}
	}

	return cancelled, nil
}

func (s *service) invalidateProfile(ctx context.Context, userID uuid.UUID) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.InvalidateProfile(ctx, userID); err != nil {
		s.logger.Warn("Failed to invalidate cached profile", "user_id", userID.String(), "error", err)
	}
}

// generateBookingReference generates a unique booking reference
func (s *service) generateBookingReference() (string, error) {
	timestamp := s.clock.Now().Format("20060102")

	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	randomPart := make([]byte, 6)

	for i := range randomPart {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		randomPart[i] = letters[num.Int64()]
	}

	return fmt.Sprintf("EVT-%s-%s", timestamp, string(randomPart)), nil
}
