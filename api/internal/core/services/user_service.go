package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// UserService covers account administration: listing, provisioning, role and
// activation changes, and password rotation. Admin-only except for
// ChangePassword, which any account may run against itself.
type UserService struct {
	repo   domain.UserRepository
	logger *slog.Logger
}

func NewUserService(repo domain.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Create provisions an account with a bcrypt-hashed password.
func (s *UserService) Create(ctx context.Context, email, password, role string) (*domain.User, error) {
	if !domain.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.String("email", user.Email),
		slog.String("role", user.Role))
	return user, nil
}

// Update changes role and activation. An admin cannot strip its own admin
// role or deactivate itself, so the system always keeps a working admin.
func (s *UserService) Update(ctx context.Context, actorID, id uuid.UUID, role string, isActive bool) (*domain.User, error) {
	if !domain.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	if actorID == id && (role != domain.RoleAdmin || !isActive) {
		return nil, fmt.Errorf("%w: cannot demote or deactivate your own account", domain.ErrInvalidInput)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Role = role
	user.IsActive = isActive
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetPassword replaces a user's password without knowing the current one.
func (s *UserService) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.repo.Update(ctx, user)
}

// ChangePassword rotates the caller's own password after verifying the
// current one.
func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return domain.ErrUnauthorized
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.repo.Update(ctx, user)
}

// Bootstrap seeds the first admin account when the users table is empty,
// so a fresh deployment has a way in. No-op once any account exists.
func (s *UserService) Bootstrap(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	user, err := s.Create(ctx, email, password, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.Info("bootstrap admin seeded", slog.String("email", user.Email))
	return nil
}
