package events

import (
	"context"
	"fmt"
	"time"

	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
)

// InventoryReleaser offers freed tickets to the event's waitlist
type InventoryReleaser interface {
	ReleaseInventory(ctx context.Context, eventID uuid.UUID, quantity int, reason waitlist.ReleaseReason) error
}

type Service interface {
	CreateEvent(ctx context.Context, adminID uuid.UUID, req CreateEventRequest) (*Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*EventResponse, error)
	ListEvents(ctx context.Context, query EventListQuery) (*PaginatedEvents, error)
	// UpdateEvent saves the changes, then releases tickets that became
	// free through a capacity increase or a price cut
	UpdateEvent(ctx context.Context, id uuid.UUID, req UpdateEventRequest) (*EventResponse, error)
}

type service struct {
	repo     Repository
	releaser InventoryReleaser
	clock    clock.Clock
	logger   *logger.Logger
}

// NewService creates the event service. releaser may be nil.
func NewService(repo Repository, releaser InventoryReleaser, clk clock.Clock, log *logger.Logger) Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &service{
		repo:     repo,
		releaser: releaser,
		clock:    clk,
		logger:   logger.OrDefault(log).WithComponent("events"),
	}
}

func (s *service) CreateEvent(ctx context.Context, adminID uuid.UUID, req CreateEventRequest) (*Event, error) {
	if req.DateTime.Before(s.clock.Now()) {
		return nil, errs.Validation("event date must be in the future")
	}

	event := &Event{
		Name:          req.Name,
		Description:   req.Description,
		Venue:         req.Venue,
		DateTime:      req.DateTime,
		TotalCapacity: req.TotalCapacity,
		Price:         req.Price,
		Status:        StatusDraft,
		CreatedBy:     adminID,
	}
	if req.Publish {
		event.Status = StatusPublished
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return event, nil
}

func (s *service) GetEvent(ctx context.Context, id uuid.UUID) (*EventResponse, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withAvailability(ctx, event)
}

func (s *service) ListEvents(ctx context.Context, query EventListQuery) (*PaginatedEvents, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = 20
	}
	list, total, err := s.repo.List(ctx, query.Page, query.Limit)
	if err != nil {
		return nil, err
	}
	return &PaginatedEvents{Events: list, TotalCount: total, Page: query.Page, Limit: query.Limit}, nil
}

func (s *service) UpdateEvent(ctx context.Context, id uuid.UUID, req UpdateEventRequest) (*EventResponse, error) {
	now := s.clock.Now()
	before, after, err := s.repo.Update(ctx, id, func(e *Event) error {
		return applyUpdate(e, req, now)
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.withAvailability(ctx, after)
	if err != nil {
		return nil, err
	}

	if reason, ok := releaseReason(before, after); ok && resp.AvailableTickets > 0 && s.releaser != nil {
		if err := s.releaser.ReleaseInventory(ctx, id, resp.AvailableTickets, reason); err != nil {
			// the update stands; the tickets stay directly bookable
			s.logger.ErrorWithContext(ctx, "Failed to release inventory to waitlist", err, map[string]interface{}{
				"event_id": id.String(),
				"quantity": resp.AvailableTickets,
				"reason":   string(reason),
			})
		}
	}
	return resp, nil
}

func applyUpdate(e *Event, req UpdateEventRequest, now time.Time) error {
	if e.Status == StatusCancelled || e.Status == StatusCompleted {
		return errs.InvalidState("cannot update event with status: %s", e.Status)
	}

	if req.Name != nil {
		e.Name = *req.Name
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.Venue != nil {
		e.Venue = *req.Venue
	}
	if req.DateTime != nil {
		if req.DateTime.Before(now) {
			return errs.Validation("event date must be in the future")
		}
		e.DateTime = *req.DateTime
	}
	if req.TotalCapacity != nil {
		if *req.TotalCapacity < e.BookedCount {
			return errs.Conflict("capacity %d is below the %d tickets already booked", *req.TotalCapacity, e.BookedCount)
		}
		e.TotalCapacity = *req.TotalCapacity
	}
	if req.Price != nil {
		e.Price = *req.Price
	}
	if req.Status != nil {
		e.Status = EventStatus(*req.Status)
	}
	return nil
}

// releaseReason reports why an update freed tickets for the waitlist, if it did
func releaseReason(before, after *Event) (waitlist.ReleaseReason, bool) {
	if !after.IsBookable() {
		return "", false
	}
	switch {
	case after.TotalCapacity > before.TotalCapacity:
		return waitlist.ReleaseReasonAdditionalInventory, true
	case after.Price < before.Price:
		// entries priced out before may be eligible now
		return waitlist.ReleaseReasonPriceChange, true
	case !before.IsBookable():
		return waitlist.ReleaseReasonSystem, true
	}
	return "", false
}

func (s *service) withAvailability(ctx context.Context, event *Event) (*EventResponse, error) {
	held, err := s.repo.HeldTickets(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	available := event.Unbooked() - held
	if available < 0 || !event.IsBookable() {
		available = 0
	}
	return &EventResponse{Event: *event, HeldTickets: held, AvailableTickets: available}, nil
}
