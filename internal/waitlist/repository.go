package waitlist

import (
	"context"
	"fmt"
	"time"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	txMaxAttempts = 3
)

// repository implements Store on top of gorm and PostgreSQL
type repository struct {
	db   *gorm.DB
	inTx bool
}

// NewRepository creates a new waitlist repository
func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

// WithTx runs fn in a transaction, retrying on serialization failures and
// deadlocks. Nested calls join the outer transaction.
func (r *repository) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if r.inTx {
		return fn(r)
	}

	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&repository{db: tx, inTx: true})
		})
		if err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", txMaxAttempts, err)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errs.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// classify maps driver errors onto the error taxonomy
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errs.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("%s not found", what)
	}
	var pgErr *pgconn.PgError
	if errs.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errs.Mark(fmt.Errorf("%s violates %s: %w", what, pgErr.ConstraintName, err), errs.ErrConflict)
	}
	return fmt.Errorf("failed to access %s: %w", what, err)
}

// CreateEntry creates a new waitlist entry in the database
func (r *repository) CreateEntry(ctx context.Context, entry *WaitlistEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.PriorityRank = entry.Priority.Rank()

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return classify(err, "waitlist entry")
	}
	return nil
}

func (r *repository) GetEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, classify(err, "waitlist entry")
	}
	return &entry, nil
}

// GetEntryForUpdate reads the entry holding a row lock until the transaction ends
func (r *repository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, classify(err, "waitlist entry")
	}
	return &entry, nil
}

// FindOpenEntry gets the user's active or notified entry for an event
func (r *repository) FindOpenEntry(ctx context.Context, userID, eventID uuid.UUID) (*WaitlistEntry, error) {
	var entry WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ? AND status IN ?", userID, eventID,
			[]EntryStatus{EntryStatusActive, EntryStatusNotified}).
		First(&entry).Error
	if err != nil {
		return nil, classify(err, "waitlist entry")
	}
	return &entry, nil
}

func (r *repository) SaveEntry(ctx context.Context, entry *WaitlistEntry) error {
	entry.PriorityRank = entry.Priority.Rank()

	result := r.db.WithContext(ctx).
		Model(entry).
		Select("*").
		Omit("id", "position", "created_at").
		Updates(entry)
	if result.Error != nil {
		return classify(result.Error, "waitlist entry")
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("waitlist entry %s not found", entry.ID)
	}
	return nil
}

// ListActiveEntries uses the (event_id, status, priority_rank, joined_at) index
func (r *repository) ListActiveEntries(ctx context.Context, eventID uuid.UUID) ([]WaitlistEntry, error) {
	var entries []WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, EntryStatusActive).
		Order("priority_rank DESC, joined_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active entries: %w", err)
	}
	return entries, nil
}

// UpdatePositions writes only the position column so updated_at keeps
// reflecting user-visible changes
func (r *repository) UpdatePositions(ctx context.Context, changes []PositionChange) error {
	if len(changes) == 0 {
		return nil
	}
	return r.WithTx(ctx, func(tx Store) error {
		db := tx.(*repository).db.WithContext(ctx)
		for _, c := range changes {
			err := db.Model(&WaitlistEntry{}).
				Where("id = ?", c.EntryID).
				UpdateColumn("position", c.NewPosition).Error
			if err != nil {
				return fmt.Errorf("failed to update position for entry %s: %w", c.EntryID, err)
			}
		}
		return nil
	})
}

// FindEntries pushes every filter criterion except tags down to SQL, then
// applies the full filter in memory
func (r *repository) FindEntries(ctx context.Context, f Filter, now time.Time) ([]WaitlistEntry, error) {
	q := r.db.WithContext(ctx).Model(&WaitlistEntry{})

	if len(f.EventIDs) > 0 {
		q = q.Where("event_id IN ?", f.EventIDs)
	}
	if len(f.UserIDs) > 0 {
		q = q.Where("user_id IN ?", f.UserIDs)
	}
	if len(f.Priorities) > 0 {
		q = q.Where("priority IN ?", f.Priorities)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.PositionMin != nil {
		q = q.Where("position >= ?", *f.PositionMin)
	}
	if f.PositionMax != nil {
		q = q.Where("position <= ?", *f.PositionMax)
	}
	if f.JoinedFrom != nil {
		q = q.Where("joined_at >= ?", *f.JoinedFrom)
	}
	if f.JoinedTo != nil {
		q = q.Where("joined_at <= ?", *f.JoinedTo)
	}
	if f.WaitDaysMin != nil {
		q = q.Where("joined_at <= ?", now.Add(-daysToDuration(*f.WaitDaysMin)))
	}
	if f.WaitDaysMax != nil {
		q = q.Where("joined_at >= ?", now.Add(-daysToDuration(*f.WaitDaysMax)))
	}
	if f.PriceMin != nil || f.PriceMax != nil {
		q = q.Where("max_price_willing IS NOT NULL")
	}
	if f.PriceMin != nil {
		q = q.Where("max_price_willing >= ?", *f.PriceMin)
	}
	if f.PriceMax != nil {
		q = q.Where("max_price_willing <= ?", *f.PriceMax)
	}

	var entries []WaitlistEntry
	err := q.Order("event_id ASC, priority_rank DESC, joined_at ASC, id ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find entries: %w", err)
	}

	return f.Apply(entries, now), nil
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

// ListEntries lists waitlist entries for an event with optional status filter
func (r *repository) ListEntries(ctx context.Context, eventID uuid.UUID, status EntryStatus, offset, limit int) ([]WaitlistEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&WaitlistEntry{}).Where("event_id = ?", eventID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count waitlist entries: %w", err)
	}

	var entries []WaitlistEntry
	err := query.
		Order("priority_rank DESC, joined_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list waitlist entries: %w", err)
	}

	return entries, total, nil
}

func (r *repository) CountEntriesByStatus(ctx context.Context, eventID uuid.UUID) (map[EntryStatus]int, error) {
	var rows []struct {
		Status EntryStatus
		Count  int
	}
	err := r.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Select("status, COUNT(*) AS count").
		Where("event_id = ?", eventID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count entries by status: %w", err)
	}

	counts := make(map[EntryStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CreateOffer relies on the partial unique index over offered offers per entry
func (r *repository) CreateOffer(ctx context.Context, offer *TicketOffer) error {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(offer).Error; err != nil {
		return classify(err, "ticket offer")
	}
	return nil
}

func (r *repository) GetOffer(ctx context.Context, id uuid.UUID) (*TicketOffer, error) {
	var offer TicketOffer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, classify(err, "ticket offer")
	}
	return &offer, nil
}

func (r *repository) GetOfferForUpdate(ctx context.Context, id uuid.UUID) (*TicketOffer, error) {
	var offer TicketOffer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&offer).Error
	if err != nil {
		return nil, classify(err, "ticket offer")
	}
	return &offer, nil
}

func (r *repository) GetOpenOfferForEntry(ctx context.Context, entryID uuid.UUID) (*TicketOffer, error) {
	var offer TicketOffer
	err := r.db.WithContext(ctx).
		Where("entry_id = ? AND status = ?", entryID, OfferStatusOffered).
		First(&offer).Error
	if err != nil {
		return nil, classify(err, "ticket offer")
	}
	return &offer, nil
}

// TransitionOffer is a conditional UPDATE; zero rows affected means another
// writer moved the offer first
func (r *repository) TransitionOffer(ctx context.Context, id uuid.UUID, from OfferStatus, t OfferTransition) (bool, error) {
	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": t.At,
	}
	if t.To == OfferStatusAccepted || t.To == OfferStatusDeclined {
		updates["responded_at"] = t.At
	}
	if t.DeclineReason != "" {
		updates["decline_reason"] = t.DeclineReason
	}
	if t.OrderRef != "" {
		updates["order_ref"] = t.OrderRef
	}

	result := r.db.WithContext(ctx).
		Model(&TicketOffer{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition offer %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]TicketOffer, error) {
	var offers []TicketOffer
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", OfferStatusOffered, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired offers: %w", err)
	}
	return offers, nil
}

func (r *repository) CountOpenOffersForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&TicketOffer{}).
		Where("user_id = ? AND status = ?", userID, OfferStatusOffered).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count user offers: %w", err)
	}
	return int(count), nil
}

func (r *repository) OpenOfferEntryIDs(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&TicketOffer{}).
		Where("event_id = ? AND status = ?", eventID, OfferStatusOffered).
		Pluck("entry_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list offered entries: %w", err)
	}

	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (r *repository) CountOpenOffers(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&TicketOffer{}).
		Where("event_id = ? AND status = ?", eventID, OfferStatusOffered).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count offers: %w", err)
	}
	return int(count), nil
}

func (r *repository) SumOpenOfferTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&TicketOffer{}).
		Select("COALESCE(SUM(ticket_quantity), 0)").
		Where("event_id = ? AND status = ?", eventID, OfferStatusOffered).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum offered tickets: %w", err)
	}
	return int(total), nil
}

func (r *repository) ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]TicketOffer, error) {
	var offers []TicketOffer
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user offers: %w", err)
	}
	return offers, nil
}
