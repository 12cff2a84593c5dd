package waitlist_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"evently-waitlist/internal/shared/clock"
	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/internal/waitlist/mocks"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type sentNotification struct {
	UserID  uuid.UUID
	EventID uuid.UUID
	Kind    waitlist.NotificationKind
	Payload map[string]interface{}
}

type fixture struct {
	ctx       context.Context
	store     *waitlist.MemoryStore
	clock     *clock.MockClock
	directory *mocks.MockDirectory
	notifier  *mocks.MockNotifier
	orders    *mocks.MockOrderService
	scheduler *mocks.MockJobScheduler
	engine    *waitlist.Engine

	mu       sync.Mutex
	event    waitlist.EventInfo
	unbooked int
	sent     []sentNotification
}

// newFixture wires an engine over a MemoryStore. tweak may adjust the deps
// before the engine is built.
func newFixture(t *testing.T, tweak ...func(*waitlist.EngineDeps)) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		ctx:       context.Background(),
		store:     waitlist.NewMemoryStore(),
		clock:     clock.NewMockClock(baseTime),
		directory: mocks.NewMockDirectory(ctrl),
		notifier:  mocks.NewMockNotifier(ctrl),
		orders:    mocks.NewMockOrderService(ctrl),
		scheduler: mocks.NewMockJobScheduler(ctrl),
		event: waitlist.EventInfo{
			ID:        uuid.New(),
			Name:      "Sold out show",
			BasePrice: 100,
		},
	}

	f.directory.EXPECT().GetEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id uuid.UUID) (*waitlist.EventInfo, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if id != f.event.ID {
				return nil, errs.NotFound("event %s not found", id)
			}
			// like the directory, report unbooked tickets less those held by offers
			held, err := f.store.SumOpenOfferTickets(context.Background(), id)
			if err != nil {
				return nil, err
			}
			ev := f.event
			if ev.AvailableTickets = f.unbooked - held; ev.AvailableTickets < 0 {
				ev.AvailableTickets = 0
			}
			return &ev, nil
		}).AnyTimes()

	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, userID, eventID uuid.UUID, kind waitlist.NotificationKind, payload map[string]interface{}) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.sent = append(f.sent, sentNotification{UserID: userID, EventID: eventID, Kind: kind, Payload: payload})
			return nil
		}).AnyTimes()

	deps := waitlist.EngineDeps{
		Store:     f.store,
		Directory: f.directory,
		Notifier:  f.notifier,
		Orders:    f.orders,
		Scheduler: f.scheduler,
		Clock:     f.clock,
		Logger:    logger.Discard(),
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	f.engine = waitlist.NewEngine(deps)
	return f
}

func (f *fixture) eventID() uuid.UUID {
	return f.event.ID
}

// setUnbooked sets the event's unbooked tickets; open offers are subtracted
// when the engine reads the event
func (f *fixture) setUnbooked(n int) {
	f.mu.Lock()
	f.unbooked = n
	f.mu.Unlock()
}

func (f *fixture) notifications(kind waitlist.NotificationKind) []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNotification
	for _, n := range f.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// seed inserts an active single-ticket entry that joined `ago` before now
func (f *fixture) seed(t *testing.T, p waitlist.Priority, ago time.Duration, mutate ...func(*waitlist.WaitlistEntry)) waitlist.WaitlistEntry {
	t.Helper()
	e := &waitlist.WaitlistEntry{
		UserID:         uuid.New(),
		EventID:        f.eventID(),
		Priority:       p,
		Status:         waitlist.EntryStatusActive,
		TicketQuantity: 1,
		Source:         waitlist.EntrySourceJoin,
		JoinedAt:       f.clock.Now().Add(-ago),
	}
	for _, fn := range mutate {
		fn(e)
	}
	require.NoError(t, f.store.CreateEntry(f.ctx, e))
	return *e
}

func (f *fixture) recalc(t *testing.T) *waitlist.RecalcResult {
	t.Helper()
	res, err := f.engine.Recalculator.Recalculate(f.ctx, f.eventID())
	require.NoError(t, err)
	return res
}

func (f *fixture) entry(t *testing.T, id uuid.UUID) waitlist.WaitlistEntry {
	t.Helper()
	e, err := f.store.GetEntry(f.ctx, id)
	require.NoError(t, err)
	return *e
}

func (f *fixture) offer(t *testing.T, id uuid.UUID) waitlist.TicketOffer {
	t.Helper()
	o, err := f.store.GetOffer(f.ctx, id)
	require.NoError(t, err)
	return *o
}

// openOffers returns the event's offered offers
func (f *fixture) openOffers() []waitlist.TicketOffer {
	var out []waitlist.TicketOffer
	for _, o := range f.store.Offers() {
		if o.EventID == f.eventID() && o.Status == waitlist.OfferStatusOffered {
			out = append(out, o)
		}
	}
	return out
}

// activePositions returns entry id -> position for active entries
func (f *fixture) activePositions(t *testing.T) map[uuid.UUID]int {
	t.Helper()
	active, err := f.store.ListActiveEntries(f.ctx, f.eventID())
	require.NoError(t, err)
	out := make(map[uuid.UUID]int, len(active))
	for _, e := range active {
		out[e.ID] = e.Position
	}
	return out
}

// requireDenseQueue asserts active positions are exactly 1..N in queue order
func requireDenseQueue(t *testing.T, store *waitlist.MemoryStore, eventID uuid.UUID) {
	t.Helper()
	active, err := store.ListActiveEntries(context.Background(), eventID)
	require.NoError(t, err)
	for i, e := range active {
		require.Equalf(t, i+1, e.Position, "entry %s at index %d", e.ID, i)
		if i > 0 {
			require.GreaterOrEqual(t, active[i-1].Priority.Rank(), e.Priority.Rank())
		}
	}
}
