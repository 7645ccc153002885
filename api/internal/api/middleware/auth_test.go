package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/core/services"
)

type memUserRepo struct {
	users map[uuid.UUID]*domain.User
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *memUserRepo) Update(_ context.Context, u *domain.User) error {
	r.users[u.ID] = u
	return nil
}

func newTestAuth(t *testing.T, role string, active bool) (*AuthMiddleware, string, *domain.User) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &domain.User{
		ID:           uuid.New(),
		Email:        "op@vela.dev",
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     active,
	}
	repo := &memUserRepo{users: map[uuid.UUID]*domain.User{user.ID: user}}

	tokens := services.NewTokenService("test-secret-test-secret-test-secret")
	auth := services.NewAuthService(repo, tokens)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	access, _, err := tokens.GenerateTokenPair(user)
	require.NoError(t, err)

	return NewAuthMiddleware(auth, logger), access, user
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthentication(t *testing.T) {
	t.Run("valid bearer token passes", func(t *testing.T) {
		m, access, user := newTestAuth(t, domain.RoleOperator, true)

		var captured *domain.User
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured, _ = r.Context().Value(domain.UserContextKey).(*domain.User)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()

		m.RequireAuthentication(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, captured)
		assert.Equal(t, user.ID, captured.ID)
	})

	t.Run("cookie token passes", func(t *testing.T) {
		m, access, _ := newTestAuth(t, domain.RoleViewer, true)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.AddCookie(&http.Cookie{Name: "vela_access_token", Value: access})
		rec := httptest.NewRecorder()

		m.RequireAuthentication(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		m, _, _ := newTestAuth(t, domain.RoleViewer, true)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		rec := httptest.NewRecorder()

		m.RequireAuthentication(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deactivated account rejected despite valid token", func(t *testing.T) {
		m, access, _ := newTestAuth(t, domain.RoleOperator, false)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()

		m.RequireAuthentication(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		m, _, _ := newTestAuth(t, domain.RoleOperator, true)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rec := httptest.NewRecorder()

		m.RequireAuthentication(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireMutator(t *testing.T) {
	m, _, _ := newTestAuth(t, domain.RoleViewer, true)

	withUser := func(role string, method string) *http.Request {
		req := httptest.NewRequest(method, "/api/v1/backends", nil)
		user := &domain.User{ID: uuid.New(), Role: role, IsActive: true}
		return req.WithContext(context.WithValue(req.Context(), domain.UserContextKey, user))
	}

	t.Run("viewer can read", func(t *testing.T) {
		rec := httptest.NewRecorder()
		m.RequireMutator(okHandler()).ServeHTTP(rec, withUser(domain.RoleViewer, http.MethodGet))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("viewer cannot mutate", func(t *testing.T) {
		rec := httptest.NewRecorder()
		m.RequireMutator(okHandler()).ServeHTTP(rec, withUser(domain.RoleViewer, http.MethodPost))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("operator can mutate", func(t *testing.T) {
		rec := httptest.NewRecorder()
		m.RequireMutator(okHandler()).ServeHTTP(rec, withUser(domain.RoleOperator, http.MethodDelete))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("admin can mutate", func(t *testing.T) {
		rec := httptest.NewRecorder()
		m.RequireMutator(okHandler()).ServeHTTP(rec, withUser(domain.RoleAdmin, http.MethodPut))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	m, _, _ := newTestAuth(t, domain.RoleViewer, true)
	handler := m.RateLimit(okHandler())

	// Burst capacity is 30; the 31st immediate request must be rejected.
	var last int
	for i := 0; i < 31; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	// A different client IP has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.Header.Set("X-Real-IP", "203.0.113.8")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
