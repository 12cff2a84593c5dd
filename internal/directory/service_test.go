package directory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"evently-waitlist/internal/bookings"
	"evently-waitlist/internal/events"
	"evently-waitlist/internal/shared/constants"
	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/users"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/cache"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeUsers struct {
	byID      map[uuid.UUID]*users.User
	creates   int
	raceEmail string
}

func newFakeUsers(list ...*users.User) *fakeUsers {
	f := &fakeUsers{byID: map[uuid.UUID]*users.User{}}
	for _, u := range list {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) CreateUser(_ context.Context, u *users.User) error {
	f.creates++
	if u.Email == f.raceEmail {
		// another importer got there first
		winner := &users.User{ID: uuid.New(), Email: u.Email}
		f.byID[winner.ID] = winner
		return errs.Conflict("user %s already exists", u.Email)
	}
	u.ID = uuid.New()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*users.User, error) {
	for _, u := range f.byID {
		if u.Email == users.NormalizeEmail(email) {
			return u, nil
		}
	}
	return nil, errs.NotFound("user %s not found", email)
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, errs.NotFound("user %s not found", id)
}

type fakeEvents struct {
	event *events.Event
	held  int
}

func (f *fakeEvents) Create(context.Context, *events.Event) error { return nil }
func (f *fakeEvents) GetByID(_ context.Context, id uuid.UUID) (*events.Event, error) {
	if f.event == nil || f.event.ID != id {
		return nil, errs.NotFound("event %s not found", id)
	}
	return f.event, nil
}
func (f *fakeEvents) HeldTickets(context.Context, uuid.UUID) (int, error) { return f.held, nil }
func (f *fakeEvents) AdjustBookedCount(context.Context, *gorm.DB, uuid.UUID, int) (*events.Event, error) {
	return nil, nil
}
func (f *fakeEvents) Update(context.Context, uuid.UUID, func(*events.Event) error) (*events.Event, *events.Event, error) {
	return nil, nil, nil
}
func (f *fakeEvents) List(context.Context, int, int) ([]events.Event, int64, error) {
	return nil, 0, nil
}

type fakeStats struct {
	stats bookings.UserStats
	calls int
}

func (f *fakeStats) GetUserStats(context.Context, uuid.UUID) (*bookings.UserStats, error) {
	f.calls++
	s := f.stats
	return &s, nil
}

// mapCache is a JSON round-tripping cache.Service
type mapCache struct {
	items map[string][]byte
}

func (m *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}
func (m *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	m.items[key] = raw
	return err
}
func (m *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}
func (m *mapCache) DeletePattern(context.Context, string) error { return nil }
func (m *mapCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetch func() (interface{}, error), dest interface{}) error {
	if err := m.Get(ctx, key, dest); err == nil {
		return nil
	}
	v, err := fetch()
	if err != nil {
		return err
	}
	if err := m.Set(ctx, key, v, ttl); err != nil {
		return err
	}
	return m.Get(ctx, key, dest)
}
func (m *mapCache) Ping(context.Context) error { return nil }

func TestGetUserProfileIsCached(t *testing.T) {
	user := &users.User{ID: uuid.New(), FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", MembershipLevel: "gold"}
	stats := &fakeStats{stats: bookings.UserStats{TotalSpend: 2400, EventsAttended: 6}}
	c := &mapCache{items: map[string][]byte{}}
	svc := NewService(newFakeUsers(user), &fakeEvents{}, stats, c, 0, logger.Discard())

	for i := 0; i < 2; i++ {
		profile, err := svc.GetUserProfile(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, waitlist.UserProfile{
			UserID:          user.ID,
			Email:           "ada@example.com",
			Name:            "Ada Lovelace",
			TotalSpend:      2400,
			MembershipLevel: "gold",
			EventsAttended:  6,
		}, *profile)
	}
	assert.Equal(t, 1, stats.calls)
	assert.Contains(t, c.items, constants.BuildUserProfileKey(user.ID.String()))

	require.NoError(t, svc.InvalidateProfile(context.Background(), user.ID))
	assert.Empty(t, c.items)
}

func TestGetUserProfileUnknownUser(t *testing.T) {
	svc := NewService(newFakeUsers(), &fakeEvents{}, nil, nil, 0, logger.Discard())
	_, err := svc.GetUserProfile(context.Background(), uuid.New())
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestGetEventSubtractsHeldTickets(t *testing.T) {
	event := &events.Event{ID: uuid.New(), Name: "Finals", TotalCapacity: 100, BookedCount: 95, Price: 80, Status: events.StatusPublished}
	repo := &fakeEvents{event: event, held: 3}
	svc := NewService(newFakeUsers(), repo, nil, nil, 0, logger.Discard())

	info, err := svc.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, waitlist.EventInfo{ID: event.ID, Name: "Finals", BasePrice: 80, AvailableTickets: 2}, *info)

	repo.held = 9
	info, err = svc.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.AvailableTickets)

	// cancelled events have nothing to sell
	repo.held = 0
	event.Status = events.StatusCancelled
	info, err = svc.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.AvailableTickets)

	_, err = svc.GetEvent(context.Background(), uuid.New())
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestFindOrCreateUser(t *testing.T) {
	existing := &users.User{ID: uuid.New(), Email: "grace@example.com"}
	repo := newFakeUsers(existing)
	svc := NewService(repo, &fakeEvents{}, nil, nil, 0, logger.Discard())
	ctx := context.Background()

	id, created, err := svc.FindOrCreateUser(ctx, waitlist.UserIdentity{Email: " Grace@Example.com "})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, id)

	id, created, err = svc.FindOrCreateUser(ctx, waitlist.UserIdentity{Email: "Ada@Example.com", FirstName: "Ada", LastName: "L"})
	require.NoError(t, err)
	assert.True(t, created)
	user := repo.byID[id]
	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, users.RoleUser, user.Role)
	assert.True(t, len(user.Password) > 0 && user.Password[0] == '$', "password is stored as a bcrypt hash")
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("")))

	_, _, err = svc.FindOrCreateUser(ctx, waitlist.UserIdentity{Email: "   "})
	assert.True(t, errs.Is(err, errs.ErrValidation))
}

func TestFindOrCreateUserLosesCreateRace(t *testing.T) {
	repo := newFakeUsers()
	repo.raceEmail = "lin@example.com"
	svc := NewService(repo, &fakeEvents{}, nil, nil, 0, logger.Discard())

	id, created, err := svc.FindOrCreateUser(context.Background(), waitlist.UserIdentity{Email: "lin@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, repo.creates)
}
