package events

import (
	"context"
	"errors"
	"fmt"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	// HeldTickets sums the quantity of open waitlist offers, which are
	// reserved for their holders until answered
	HeldTickets(ctx context.Context, eventID uuid.UUID) (int, error)
	// AdjustBookedCount changes booked_count by delta under a row lock on tx
	AdjustBookedCount(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, delta int) (*Event, error)
	// Update applies fn to the locked row and saves it, returning the row before and after
	Update(ctx context.Context, id uuid.UUID, fn func(*Event) error) (before, after *Event, err error)
	List(ctx context.Context, page, limit int) ([]Event, int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var event Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("event %s not found", id)
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return &event, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fn func(*Event) error) (*Event, *Event, error) {
	var before, after Event
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&after).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("event %s not found", id)
			}
			return fmt.Errorf("failed to lock event: %w", err)
		}
		before = after
		if err := fn(&after); err != nil {
			return err
		}
		if err := tx.Save(&after).Error; err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &before, &after, nil
}

func (r *repository) List(ctx context.Context, page, limit int) ([]Event, int64, error) {
	var (
		list  []Event
		total int64
	)
	query := r.db.WithContext(ctx).Model(&Event{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}
	if err := query.Order("date_time ASC").Offset((page - 1) * limit).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	return list, total, nil
}

func (r *repository) HeldTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	var held int
	err := r.db.WithContext(ctx).
		Table("ticket_offers").
		Select("COALESCE(SUM(ticket_quantity), 0)").
		Where("event_id = ? AND status = ?", eventID, "OFFERED").
		Scan(&held).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum held tickets: %w", err)
	}
	return held, nil
}

func (r *repository) AdjustBookedCount(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, delta int) (*Event, error) {
	if tx == nil {
		tx = r.db
	}
	var event Event

	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", eventID).
		First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("event %s not found", eventID)
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}

	newBookedCount := event.BookedCount + delta
	if newBookedCount < 0 {
		return nil, errs.InvalidState("cannot reduce booked count below 0")
	}
	if newBookedCount > event.TotalCapacity {
		return nil, errs.Conflict("insufficient capacity: only %d tickets available, requested %d",
			event.Unbooked(), delta)
	}

	if err := tx.WithContext(ctx).Model(&event).Update("booked_count", newBookedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to update event booked count: %w", err)
	}
	event.BookedCount = newBookedCount
	return &event, nil
}
