package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/core/services"
	"github.com/irgordon/vela/api/internal/engine"
	"github.com/irgordon/vela/api/internal/telemetry"
)

func TestHandleError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", domain.ErrNotFound), http.StatusNotFound},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"in use", domain.ErrInUse, http.StatusConflict},
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"validation error", &engine.ValidationError{Diagnostics: "nginx: [emerg] unexpected end of file"}, http.StatusUnprocessableEntity},
		{"render error", &engine.RenderError{Reason: "rule references nonexistent backend"}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			rec := httptest.NewRecorder()

			HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandleError_ValidatorDiagnosticsPassThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/proxy/reload", nil)
	rec := httptest.NewRecorder()

	HandleError(rec, req, &engine.ValidationError{Diagnostics: `nginx: [emerg] unknown directive "srever"`})

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body.Diagnostics, `unknown directive "srever"`)
}

type stubAuditRepo struct{}

func (stubAuditRepo) Create(context.Context, *domain.AuditEvent) error { return nil }
func (stubAuditRepo) List(context.Context, domain.AuditFilter) ([]domain.AuditEvent, int, error) {
	return nil, 0, nil
}

type stubSettingsRepo struct {
	values map[string]string
}

func (r *stubSettingsRepo) GetAll(context.Context) (domain.ProxySettings, error) {
	return domain.ProxySettings(r.values), nil
}
func (r *stubSettingsRepo) Get(_ context.Context, key string) (string, error) {
	v, ok := r.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}
func (r *stubSettingsRepo) Set(_ context.Context, key, value string) error {
	r.values[key] = value
	return nil
}
func (r *stubSettingsRepo) Delete(_ context.Context, key string) error {
	if _, ok := r.values[key]; !ok {
		return domain.ErrNotFound
	}
	delete(r.values, key)
	return nil
}

func testAuditService() *services.AuditService {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return services.NewAuditService(stubAuditRepo{}, telemetry.NewHub(), logger)
}

func asUser(req *http.Request, role string) *http.Request {
	user := &domain.User{Role: role, IsActive: true}
	return req.WithContext(context.WithValue(req.Context(), domain.UserContextKey, user))
}

// newSettingsRouter mounts the handler under chi so URL params resolve.
func newSettingsRouter(h *SettingsHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Put("/api/v1/settings/{key}", h.Set)
	r.Delete("/api/v1/settings/{key}", h.Delete)
	return r
}

func TestSettingsHandler_RejectsUnknownKey(t *testing.T) {
	h := NewSettingsHandler(&stubSettingsRepo{values: map[string]string{}}, testAuditService())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/not_a_real_knob",
		strings.NewReader(`{"value": "42"}`))
	req = asUser(req, domain.RoleAdmin)
	rec := httptest.NewRecorder()

	router := newSettingsRouter(h)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsHandler_SetAndDeleteKnownKey(t *testing.T) {
	repo := &stubSettingsRepo{values: map[string]string{}}
	h := NewSettingsHandler(repo, testAuditService())
	router := newSettingsRouter(h)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/"+engine.SettingWorkerConnections,
		strings.NewReader(`{"value": "2048"}`))
	req = asUser(req, domain.RoleAdmin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2048", repo.values[engine.SettingWorkerConnections])

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/settings/"+engine.SettingWorkerConnections, nil)
	del = asUser(del, domain.RoleAdmin)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, del)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, repo.values, engine.SettingWorkerConnections)
}
