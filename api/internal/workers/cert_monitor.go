package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// ExpiryWarningWindow is how far ahead the monitor looks for certificates
// about to lapse.
const ExpiryWarningWindow = 30 * 24 * time.Hour

// CertMonitor periodically scans for certificates nearing expiry and raises
// a warning audit event for each. It never mutates anything.
type CertMonitor struct {
	certs    domain.CertificateRepository
	audit    domain.AuditRepository
	logger   *slog.Logger
	interval time.Duration

	// warned tracks certificates already flagged this process lifetime, so a
	// tight interval doesn't flood the audit trail with duplicates.
	warned map[string]struct{}
}

func NewCertMonitor(
	certs domain.CertificateRepository,
	audit domain.AuditRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CertMonitor {
	return &CertMonitor{
		certs:    certs,
		audit:    audit,
		logger:   logger,
		interval: interval,
		warned:   make(map[string]struct{}),
	}
}

func (m *CertMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// First sweep immediately on boot rather than waiting a full interval.
	m.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *CertMonitor) sweep(ctx context.Context) {
	expiring, err := m.certs.ListExpiring(ctx, ExpiryWarningWindow)
	if err != nil {
		m.logger.Error("failed to list expiring certificates", slog.Any("error", err))
		return
	}

	for _, cert := range expiring {
		key := cert.ID.String()
		if _, seen := m.warned[key]; seen {
			continue
		}
		m.warned[key] = struct{}{}

		remaining := "unknown"
		if cert.ExpiresAt != nil {
			remaining = time.Until(*cert.ExpiresAt).Round(time.Hour).String()
		}
		m.logger.Warn("certificate nearing expiry",
			slog.String("name", cert.Name),
			slog.String("pattern", cert.DomainPattern),
			slog.String("remaining", remaining))

		event := &domain.AuditEvent{
			Action:       "certificate_expiry_warning",
			ResourceType: "certificate",
			ResourceID:   key,
			Severity:     domain.SeverityWarning,
			Diagnostics:  fmt.Sprintf("certificate %q (%s) expires in %s", cert.Name, cert.DomainPattern, remaining),
			CreatedAt:    time.Now().UTC(),
		}
		if err := m.audit.Create(ctx, event); err != nil {
			m.logger.Error("failed to record expiry warning", slog.Any("error", err))
		}
	}
}
