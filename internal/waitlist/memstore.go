package waitlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"evently-waitlist/internal/shared/errs"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Transactions serialize on one mutex and
// roll back by restoring a snapshot. It mirrors the database's unique indexes
// so engine code sees the same conflicts it would against PostgreSQL.
type MemoryStore struct {
	state *memState
	tx    bool
}

type memState struct {
	mu             sync.Mutex
	entries        map[uuid.UUID]WaitlistEntry
	offers         map[uuid.UUID]TicketOffer
	positionWrites int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		entries: make(map[uuid.UUID]WaitlistEntry),
		offers:  make(map[uuid.UUID]TicketOffer),
	}}
}

func (m *MemoryStore) lock() func() {
	if m.tx {
		return func() {}
	}
	m.state.mu.Lock()
	return m.state.mu.Unlock
}

// PositionWrites counts position rows written since creation
func (m *MemoryStore) PositionWrites() int {
	defer m.lock()()
	return m.state.positionWrites
}

// Entries returns every stored entry in queue order
func (m *MemoryStore) Entries() []WaitlistEntry {
	defer m.lock()()
	out := make([]WaitlistEntry, 0, len(m.state.entries))
	for _, e := range m.state.entries {
		out = append(out, e)
	}
	SortQueue(out)
	return out
}

// Offers returns every stored offer, oldest first
func (m *MemoryStore) Offers() []TicketOffer {
	defer m.lock()()
	out := make([]TicketOffer, 0, len(m.state.offers))
	for _, o := range m.state.offers {
		out = append(out, o)
	}
	sortOffers(out)
	return out
}

func sortOffers(offers []TicketOffer) {
	sort.SliceStable(offers, func(i, j int) bool {
		if !offers[i].CreatedAt.Equal(offers[j].CreatedAt) {
			return offers[i].CreatedAt.Before(offers[j].CreatedAt)
		}
		return offers[i].ID.String() < offers[j].ID.String()
	})
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if m.tx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	entries := make(map[uuid.UUID]WaitlistEntry, len(m.state.entries))
	for k, v := range m.state.entries {
		entries[k] = v
	}
	offers := make(map[uuid.UUID]TicketOffer, len(m.state.offers))
	for k, v := range m.state.offers {
		offers[k] = v
	}
	writes := m.state.positionWrites

	if err := fn(&MemoryStore{state: m.state, tx: true}); err != nil {
		m.state.entries = entries
		m.state.offers = offers
		m.state.positionWrites = writes
		return err
	}
	return nil
}

func (m *MemoryStore) CreateEntry(ctx context.Context, entry *WaitlistEntry) error {
	defer m.lock()()

	if entry.Status.IsOpen() {
		for _, e := range m.state.entries {
			if e.UserID == entry.UserID && e.EventID == entry.EventID && e.Status.IsOpen() {
				return errs.Conflict("user %s already holds an open entry for event %s", entry.UserID, entry.EventID)
			}
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.PriorityRank = entry.Priority.Rank()
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	m.state.entries[entry.ID] = *entry
	return nil
}

func (m *MemoryStore) GetEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	defer m.lock()()
	e, ok := m.state.entries[id]
	if !ok {
		return nil, errs.NotFound("waitlist entry %s not found", id)
	}
	return &e, nil
}

func (m *MemoryStore) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	return m.GetEntry(ctx, id)
}

func (m *MemoryStore) FindOpenEntry(ctx context.Context, userID, eventID uuid.UUID) (*WaitlistEntry, error) {
	defer m.lock()()
	for _, e := range m.state.entries {
		if e.UserID == userID && e.EventID == eventID && e.Status.IsOpen() {
			found := e
			return &found, nil
		}
	}
	return nil, errs.NotFound("no open waitlist entry for user %s on event %s", userID, eventID)
}

func (m *MemoryStore) SaveEntry(ctx context.Context, entry *WaitlistEntry) error {
	defer m.lock()()

	cur, ok := m.state.entries[entry.ID]
	if !ok {
		return errs.NotFound("waitlist entry %s not found", entry.ID)
	}
	if entry.Status.IsOpen() {
		for _, e := range m.state.entries {
			if e.ID != entry.ID && e.UserID == entry.UserID && e.EventID == entry.EventID && e.Status.IsOpen() {
				return errs.Conflict("user %s already holds an open entry for event %s", entry.UserID, entry.EventID)
			}
		}
	}

	next := *entry
	next.Position = cur.Position
	next.CreatedAt = cur.CreatedAt
	next.PriorityRank = next.Priority.Rank()
	next.UpdatedAt = time.Now().UTC()
	m.state.entries[entry.ID] = next

	entry.Position = cur.Position
	entry.PriorityRank = next.PriorityRank
	return nil
}

func (m *MemoryStore) ListActiveEntries(ctx context.Context, eventID uuid.UUID) ([]WaitlistEntry, error) {
	defer m.lock()()
	var out []WaitlistEntry
	for _, e := range m.state.entries {
		if e.EventID == eventID && e.Status == EntryStatusActive {
			out = append(out, e)
		}
	}
	SortQueue(out)
	return out, nil
}

func (m *MemoryStore) UpdatePositions(ctx context.Context, changes []PositionChange) error {
	defer m.lock()()
	for _, c := range changes {
		e, ok := m.state.entries[c.EntryID]
		if !ok {
			return errs.NotFound("waitlist entry %s not found", c.EntryID)
		}
		e.Position = c.NewPosition
		m.state.entries[c.EntryID] = e
		m.state.positionWrites++
	}
	return nil
}

func (m *MemoryStore) FindEntries(ctx context.Context, f Filter, now time.Time) ([]WaitlistEntry, error) {
	defer m.lock()()
	all := make([]WaitlistEntry, 0, len(m.state.entries))
	for _, e := range m.state.entries {
		all = append(all, e)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].EventID != all[j].EventID {
			return all[i].EventID.String() < all[j].EventID.String()
		}
		return QueueLess(all[i], all[j])
	})
	return f.Apply(all, now), nil
}

func (m *MemoryStore) ListEntries(ctx context.Context, eventID uuid.UUID, status EntryStatus, offset, limit int) ([]WaitlistEntry, int64, error) {
	defer m.lock()()
	var matched []WaitlistEntry
	for _, e := range m.state.entries {
		if e.EventID == eventID && (status == "" || e.Status == status) {
			matched = append(matched, e)
		}
	}
	SortQueue(matched)

	total := int64(len(matched))
	if offset >= len(matched) {
		return []WaitlistEntry{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (m *MemoryStore) CountEntriesByStatus(ctx context.Context, eventID uuid.UUID) (map[EntryStatus]int, error) {
	defer m.lock()()
	counts := make(map[EntryStatus]int)
	for _, e := range m.state.entries {
		if e.EventID == eventID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) CreateOffer(ctx context.Context, offer *TicketOffer) error {
	defer m.lock()()

	if offer.Status == OfferStatusOffered {
		for _, o := range m.state.offers {
			if o.EntryID == offer.EntryID && o.Status == OfferStatusOffered {
				return errs.Conflict("entry %s already holds offer %s", offer.EntryID, o.ID)
			}
		}
	}
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	now := time.Now().UTC()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	offer.UpdatedAt = now

	m.state.offers[offer.ID] = *offer
	return nil
}

func (m *MemoryStore) GetOffer(ctx context.Context, id uuid.UUID) (*TicketOffer, error) {
	defer m.lock()()
	o, ok := m.state.offers[id]
	if !ok {
		return nil, errs.NotFound("ticket offer %s not found", id)
	}
	return &o, nil
}

func (m *MemoryStore) GetOfferForUpdate(ctx context.Context, id uuid.UUID) (*TicketOffer, error) {
	return m.GetOffer(ctx, id)
}

func (m *MemoryStore) GetOpenOfferForEntry(ctx context.Context, entryID uuid.UUID) (*TicketOffer, error) {
	defer m.lock()()
	for _, o := range m.state.offers {
		if o.EntryID == entryID && o.Status == OfferStatusOffered {
			found := o
			return &found, nil
		}
	}
	return nil, errs.NotFound("no open offer for entry %s", entryID)
}

func (m *MemoryStore) TransitionOffer(ctx context.Context, id uuid.UUID, from OfferStatus, t OfferTransition) (bool, error) {
	defer m.lock()()
	o, ok := m.state.offers[id]
	if !ok || o.Status != from {
		return false, nil
	}

	o.Status = t.To
	o.UpdatedAt = t.At
	if t.To == OfferStatusAccepted || t.To == OfferStatusDeclined {
		at := t.At
		o.RespondedAt = &at
	}
	if t.DeclineReason != "" {
		o.DeclineReason = t.DeclineReason
	}
	if t.OrderRef != "" {
		o.OrderRef = t.OrderRef
	}
	m.state.offers[id] = o
	return true, nil
}

func (m *MemoryStore) ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]TicketOffer, error) {
	defer m.lock()()
	var out []TicketOffer
	for _, o := range m.state.offers {
		if OfferExpired(o, now) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountOpenOffersForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	defer m.lock()()
	n := 0
	for _, o := range m.state.offers {
		if o.UserID == userID && o.Status == OfferStatusOffered {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) OpenOfferEntryIDs(ctx context.Context, eventID uuid.UUID) (map[uuid.UUID]bool, error) {
	defer m.lock()()
	set := make(map[uuid.UUID]bool)
	for _, o := range m.state.offers {
		if o.EventID == eventID && o.Status == OfferStatusOffered {
			set[o.EntryID] = true
		}
	}
	return set, nil
}

func (m *MemoryStore) CountOpenOffers(ctx context.Context, eventID uuid.UUID) (int, error) {
	defer m.lock()()
	n := 0
	for _, o := range m.state.offers {
		if o.EventID == eventID && o.Status == OfferStatusOffered {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SumOpenOfferTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	defer m.lock()()
	n := 0
	for _, o := range m.state.offers {
		if o.EventID == eventID && o.Status == OfferStatusOffered {
			n += o.TicketQuantity
		}
	}
	return n, nil
}

func (m *MemoryStore) ListOffersForUser(ctx context.Context, userID uuid.UUID) ([]TicketOffer, error) {
	defer m.lock()()
	var out []TicketOffer
	for _, o := range m.state.offers {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sortOffers(out)
	// newest first, matching the database ordering
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
