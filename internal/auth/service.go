package auth

import (
	"context"
	"time"

	"evently-waitlist/internal/shared/errs"
	"evently-waitlist/internal/users"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs access tokens for an authenticated user
type TokenIssuer interface {
	IssueAccessToken(userID uuid.UUID, email string, role users.Role, ttl time.Duration) (string, error)
}

type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error)
}

type service struct {
	repo   users.Repository
	tokens TokenIssuer
	ttl    time.Duration
	logger *logger.Logger
}

func NewService(repo users.Repository, tokens TokenIssuer, ttl time.Duration, log *logger.Logger) Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &service{
		repo:   repo,
		tokens: tokens,
		ttl:    ttl,
		logger: logger.OrDefault(log).WithComponent("auth"),
	}
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// self-registration never grants admin or a membership tier
	user := &users.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  string(hashed),
		Role:      users.RoleUser,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "user registered", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return s.authResponse(user)
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.authResponse(user)
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *service) authResponse(user *users.User) (*AuthResponse, error) {
	token, err := s.tokens.IssueAccessToken(user.ID, user.Email, user.Role, s.ttl)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		User:        toUserResponse(user),
		AccessToken: token,
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

func toUserResponse(u *users.User) UserResponse {
	return UserResponse{
		ID:              u.ID.String(),
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		Role:            string(u.Role),
		MembershipLevel: u.MembershipLevel,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
