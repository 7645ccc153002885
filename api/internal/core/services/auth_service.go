package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// dummyPasswordHash is a real cost-10 bcrypt hash (of "password"). It must
// parse, so the comparison against it runs the full key-stretching work
// instead of bailing at decode.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// AuthService verifies credentials and hands out token pairs. Password
// comparison always runs bcrypt, so a missing account and a wrong password
// take the same path.
type AuthService struct {
	users  domain.UserRepository
	tokens *TokenService
}

func NewAuthService(users domain.UserRepository, tokens *TokenService) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Burn a bcrypt comparison anyway to keep timing uniform.
		bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
		return "", "", domain.ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", "", domain.ErrUnauthorized
	}

	if !user.IsActive {
		return "", "", fmt.Errorf("%w: account suspended", domain.ErrUnauthorized)
	}

	return s.tokens.GenerateTokenPair(user)
}

// Refresh exchanges a valid refresh token for a new pair. The user row is
// re-read so a deactivation or role change takes effect immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", "", domain.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", "", domain.ErrUnauthorized
	}
	if !user.IsActive {
		return "", "", fmt.Errorf("%w: account suspended", domain.ErrUnauthorized)
	}

	return s.tokens.GenerateTokenPair(user)
}

// ValidateAccess resolves an access token to its live user row.
func (s *AuthService) ValidateAccess(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil || !user.IsActive {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}

// HashPassword wraps bcrypt with the default cost for user provisioning.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("%w: password must be at least 8 characters", domain.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
