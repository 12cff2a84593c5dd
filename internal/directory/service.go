// Package directory is the read side of users and events used by the
// waitlist engine: tier-resolution profiles, event availability and
// find-or-create of users during bulk import.
package directory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
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
	"golang.org/x/crypto/bcrypt"
)

// BookingStats is the part of the bookings repository profiles are built from
type BookingStats interface {
	GetUserStats(ctx context.Context, userID uuid.UUID) (*bookings.UserStats, error)
}

type Service struct {
	users      users.Repository
	events     events.Repository
	stats      BookingStats
	cache      cache.Service
	profileTTL time.Duration
	logger     *logger.Logger
}

var (
	_ waitlist.Directory          = (*Service)(nil)
	_ bookings.ProfileInvalidator = (*Service)(nil)
)

// NewService builds the directory. cacheService may be nil; a zero
// profileTTL uses the default profile TTL.
func NewService(userRepo users.Repository, eventRepo events.Repository, stats BookingStats, cacheService cache.Service, profileTTL time.Duration, log *logger.Logger) *Service {
	if profileTTL <= 0 {
		profileTTL = constants.TTL_USER_PROFILE
	}
	return &Service{
		users:      userRepo,
		events:     eventRepo,
		stats:      stats,
		cache:      cacheService,
		profileTTL: profileTTL,
		logger:     logger.OrDefault(log).WithComponent("directory"),
	}
}

func (s *Service) GetUserProfile(ctx context.Context, userID uuid.UUID) (*waitlist.UserProfile, error) {
	if s.cache == nil {
		return s.loadProfile(ctx, userID)
	}

	var profile waitlist.UserProfile
	err := s.cache.GetOrSet(ctx, constants.BuildUserProfileKey(userID.String()), s.profileTTL,
		func() (interface{}, error) { return s.loadProfile(ctx, userID) }, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Service) loadProfile(ctx context.Context, userID uuid.UUID) (*waitlist.UserProfile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &waitlist.UserProfile{
		UserID:          user.ID,
		Email:           user.Email,
		Name:            user.FullName(),
		MembershipLevel: user.MembershipLevel,
	}
	if s.stats != nil {
		stats, err := s.stats.GetUserStats(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load booking stats: %w", err)
		}
		profile.TotalSpend = stats.TotalSpend
		profile.EventsAttended = stats.EventsAttended
	}
	return profile, nil
}

// GetEvent reports availability net of tickets held by open offers. It is
// never cached because joins are refused while tickets are available.
func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (*waitlist.EventInfo, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	available := 0
	if event.IsBookable() {
		held, err := s.events.HeldTickets(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if available = event.Unbooked() - held; available < 0 {
			available = 0
		}
	}

	return &waitlist.EventInfo{
		ID:               event.ID,
		Name:             event.Name,
		BasePrice:        event.Price,
		AvailableTickets: available,
	}, nil
}

// FindOrCreateUser returns the user with the identity's email, creating one
// with an unusable random password when absent. created reports a new user.
func (s *Service) FindOrCreateUser(ctx context.Context, identity waitlist.UserIdentity) (uuid.UUID, bool, error) {
	email := users.NormalizeEmail(identity.Email)
	if email == "" {
		return uuid.Nil, false, errs.Validation("email is required")
	}

	if user, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return user.ID, false, nil
	} else if !errs.Is(err, errs.ErrNotFound) {
		return uuid.Nil, false, err
	}

	hashed, err := placeholderPassword()
	if err != nil {
		return uuid.Nil, false, err
	}

	user := &users.User{
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Email:     email,
		Password:  hashed,
		Role:      users.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errs.Is(err, errs.ErrConflict) {
			return uuid.Nil, false, err
		}
		// created concurrently by another import batch
		existing, lookupErr := s.users.GetUserByEmail(ctx, email)
		if lookupErr != nil {
			return uuid.Nil, false, lookupErr
		}
		return existing.ID, false, nil
	}

	s.logger.InfoWithContext(ctx, "Created user during waitlist import", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   email,
	})
	return user.ID, true, nil
}

// InvalidateProfile drops a cached profile. Bookings calls it whenever a
// user's spend changes.
func (s *Service) InvalidateProfile(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, constants.BuildUserProfileKey(userID.String()))
}

func placeholderPassword() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(raw)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
