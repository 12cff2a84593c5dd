package waitlist

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for entries and offers.
//
// Reads that miss return an errs.NotFound error. CreateEntry fails with
// errs.Conflict when the user already holds an open entry for the event, and
// CreateOffer fails with errs.Conflict when the entry already holds an offered
// offer. WithTx runs fn against a transactional Store; fn's error rolls back.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	CreateEntry(ctx context.Context, entry *WaitlistEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	FindOpenEntry(ctx context.Context, userID, eventID uuid.UUID) (*WaitlistEntry, error)
	// SaveEntry writes every mutable field except Position
	SaveEntry(ctx context.Context, entry *WaitlistEntry) error
	// ListActiveEntries returns the event's active entries in queue order
	ListActiveEntries(ctx context.Context, eventID uuid.UUID) ([]WaitlistEntry, error)
	UpdatePositions(ctx context.Context, changes []PositionChange) error
	FindEntries(ctx context.Context, filter Filter, now time.Time) ([]WaitlistEntry, error)
	ListEntries(ctx context.Context, eventID uuid.UUID, status EntryStatus, offset, limit int) ([]WaitlistEntry, int64, error)
	CountEntriesByStatus(ctx context.Context, eventID uuid.UUID) (map[EntryStatus]int, error)

	CreateOffer(ctx context.Context, offer *TicketOffer) error
	GetOffer(ctx context.Context, id uuid.UUID) (*TicketOffer, error)
	GetOfferForUpdate(ctx context.Context, id uuid.UUID) (*TicketOffer, error)
	GetOpenOfferForEntry(ctx context.Context, entryID uuid.UUID) (*TicketOffer, error)
	// TransitionOffer moves the offer from `from` to t.To only if it is still
	// in `from`. It reports whether this call made the move.
	TransitionOffer(ctx context.Context, id uuid.UUID, from OfferStatus, t OfferTransition) (bool, error)
	ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]TicketOffer, error)
	CountOpenOffersForUser(ctx context.Context, userID uuid.UUID) (int, error)
	OpenOfferEntryIDs(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]bool, error)
	CountOpenOffers(ctx context.Context, eventID uuid.UUID) (int, error)
	// SumOpenOfferTickets totals the tickets held by the event's offered offers
	SumOpenOfferTickets(ctx context.Context, eventID uuid.UUID) (int, error)
	ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]TicketOffer, error)
}
