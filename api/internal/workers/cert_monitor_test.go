package workers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irgordon/vela/api/internal/core/domain"
)

type stubCertRepo struct {
	expiring []domain.Certificate
}

func (r *stubCertRepo) Create(context.Context, *domain.Certificate) error { return nil }
func (r *stubCertRepo) GetByID(context.Context, uuid.UUID) (*domain.Certificate, error) {
	return nil, domain.ErrNotFound
}
func (r *stubCertRepo) List(context.Context) ([]domain.Certificate, error) { return nil, nil }
func (r *stubCertRepo) Update(context.Context, *domain.Certificate) error  { return nil }
func (r *stubCertRepo) Delete(context.Context, uuid.UUID) error            { return nil }
func (r *stubCertRepo) ClearDefault(context.Context) error                 { return nil }
func (r *stubCertRepo) ListExpiring(context.Context, time.Duration) ([]domain.Certificate, error) {
	return r.expiring, nil
}

type captureAuditRepo struct {
	events []domain.AuditEvent
}

func (r *captureAuditRepo) Create(_ context.Context, e *domain.AuditEvent) error {
	r.events = append(r.events, *e)
	return nil
}

func (r *captureAuditRepo) List(context.Context, domain.AuditFilter) ([]domain.AuditEvent, int, error) {
	return nil, 0, nil
}

func TestCertMonitor_SweepEmitsOneWarningPerCertificate(t *testing.T) {
	soon := time.Now().Add(10 * 24 * time.Hour)
	certs := &stubCertRepo{expiring: []domain.Certificate{
		{ID: uuid.New(), Name: "web", DomainPattern: "web.example.com", ExpiresAt: &soon},
		{ID: uuid.New(), Name: "api", DomainPattern: "api.example.com", ExpiresAt: &soon},
	}}
	audit := &captureAuditRepo{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	monitor := NewCertMonitor(certs, audit, logger, time.Hour)
	monitor.sweep(context.Background())

	require.Len(t, audit.events, 2)
	for _, e := range audit.events {
		assert.Equal(t, "certificate_expiry_warning", e.Action)
		assert.Equal(t, domain.SeverityWarning, e.Severity)
		assert.Equal(t, "certificate", e.ResourceType)
	}

	// A second sweep over the same set must not duplicate warnings.
	monitor.sweep(context.Background())
	assert.Len(t, audit.events, 2)
}

func TestCertMonitor_SweepWithNothingExpiring(t *testing.T) {
	audit := &captureAuditRepo{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	monitor := NewCertMonitor(&stubCertRepo{}, audit, logger, time.Hour)
	monitor.sweep(context.Background())

	assert.Empty(t, audit.events)
}
