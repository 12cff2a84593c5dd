package bookings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"evently-waitlist/internal/events"
	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Repository interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetBookingByOfferID(ctx context.Context, offerID uuid.UUID) (*Booking, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error)
	GetUserStats(ctx context.Context, userID uuid.UUID) (*UserStats, error)

	// Concurrency-safe booking creation and cancellation; both move the
	// event's booked_count in the same transaction
	CreateBookingWithCapacityCheck(ctx context.Context, booking *Booking) error
	CancelBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error)
}

type repository struct {
	db     *gorm.DB
	events events.Repository
}

func NewRepository(db *gorm.DB, eventRepo events.Repository) Repository {
	return &repository{db: db, events: eventRepo}
}

func (r *repository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("booking %s not found", id)
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return &booking, nil
}

func (r *repository) GetBookingByOfferID(ctx context.Context, offerID uuid.UUID) (*Booking, error) {
	var booking Booking
	if err := r.db.WithContext(ctx).Where("offer_id = ?", offerID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("no booking for offer %s", offerID)
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return &booking, nil
}

func (r *repository) GetUserBookings(ctx context.Context, userID uuid.UUID, query BookingListQuery) ([]Booking, int64, error) {
	var bookings []Booking
	var totalCount int64

	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 10
	}

	baseQuery := r.db.WithContext(ctx).
		Model(&Booking{}).
		Where("user_id = ?", userID)
	baseQuery = r.applyFilters(baseQuery, query)

	if err := baseQuery.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	offset := (query.Page - 1) * query.Limit
	err := baseQuery.
		Order("created_at DESC").
		Offset(offset).
		Limit(query.Limit).
		Find(&bookings).Error

	return bookings, totalCount, err
}

func (r *repository) GetUserStats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	var stats UserStats
	err := r.db.WithContext(ctx).
		Model(&Booking{}).
		Select("COALESCE(SUM(total_price), 0) AS total_spend, COUNT(DISTINCT event_id) AS events_attended").
		Where("user_id = ? AND status = ?", userID, StatusConfirmed).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate bookings: %w", err)
	}
	return &stats, nil
}

// CreateBookingWithCapacityCheck creates a booking atomically with capacity validation
func (r *repository) CreateBookingWithCapacityCheck(ctx context.Context, booking *Booking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := r.events.AdjustBookedCount(ctx, tx, booking.EventID, booking.Quantity)
		if err != nil {
			return err
		}
		if !event.IsBookable() {
			return errs.InvalidState("event %s is not available for booking", event.ID)
		}

		if err := tx.Create(booking).Error; err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return errs.Conflict("booking already exists: %s", pgErr.ConstraintName)
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}
		return nil
	})
}

func (r *repository) CancelBooking(ctx context.Context, id uuid.UUID, at time.Time) (*Booking, error) {
	var booking Booking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&booking).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("booking %s not found", id)
			}
			return err
		}

		res := tx.Model(&Booking{}).
			Where("id = ? AND status = ?", id, StatusConfirmed).
			Updates(map[string]interface{}{
				"status":       StatusCancelled,
				"cancelled_at": at,
				"updated_at":   at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel booking: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.InvalidState("booking %s is already cancelled", id)
		}

		if _, err := r.events.AdjustBookedCount(ctx, tx, booking.EventID, -booking.Quantity); err != nil {
			return err
		}
		booking.Status = StatusCancelled
		booking.CancelledAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// applyFilters applies query filters to the GORM query
func (r *repository) applyFilters(query *gorm.DB, filters BookingListQuery) *gorm.DB {
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	if filters.EventID != "" {
		if eventID, err := uuid.Parse(filters.EventID); err == nil {
			query = query.Where("event_id = ?", eventID)
		}
	}

	return query
}

// CalculateTotalPages returns the page count for a paginated listing
func CalculateTotalPages(totalCount int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalCount) / float64(limit)))
}
