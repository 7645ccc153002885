package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/engine"
)

// ProxyStatus is the operator-facing health summary.
type ProxyStatus struct {
	Healthy        bool       `json:"healthy"`
	LiveConfigHash string     `json:"live_config_hash,omitempty"`
	LiveConfigTime *time.Time `json:"live_config_time,omitempty"`
	ActiveRules    int        `json:"active_rules"`
	ActiveBackends int        `json:"active_backends"`
	Detail         string     `json:"detail,omitempty"`
}

// ProxyService assembles database state into snapshots and drives the reload
// controller. It is the only caller of the engine in the whole system.
type ProxyService struct {
	backends   domain.BackendRepository
	rules      domain.RuleRepository
	certs      domain.CertificateRepository
	settings   domain.SettingsRepository
	controller *engine.Controller
	prober     engine.HealthProber
	livePath   string
	logger     *slog.Logger
}

func NewProxyService(
	backends domain.BackendRepository,
	rules domain.RuleRepository,
	certs domain.CertificateRepository,
	settings domain.SettingsRepository,
	controller *engine.Controller,
	prober engine.HealthProber,
	livePath string,
	logger *slog.Logger,
) *ProxyService {
	return &ProxyService{
		backends:   backends,
		rules:      rules,
		certs:      certs,
		settings:   settings,
		controller: controller,
		prober:     prober,
		livePath:   livePath,
		logger:     logger,
	}
}

// snapshot reads everything the renderer needs in one pass. The reads are
// not transactional; the reload mutex downstream means the last snapshot to
// acquire it wins, which is the behavior we want for bursts of edits.
func (s *ProxyService) snapshot(ctx context.Context) (engine.Snapshot, error) {
	backends, err := s.backends.List(ctx)
	if err != nil {
		return engine.Snapshot{}, err
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return engine.Snapshot{}, err
	}
	certs, err := s.certs.List(ctx)
	if err != nil {
		return engine.Snapshot{}, err
	}
	settings, err := s.settings.GetAll(ctx)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return engine.Snapshot{
		Backends:     backends,
		Rules:        rules,
		Certificates: certs,
		Settings:     settings,
	}, nil
}

// Reload builds a fresh snapshot and pushes it through the full pipeline.
func (s *ProxyService) Reload(ctx context.Context, actorID *uuid.UUID) (*engine.Result, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.controller.Apply(ctx, snap, actorID)
}

// Preview renders and validates the configuration the current database state
// would produce, without touching the live file.
func (s *ProxyService) Preview(ctx context.Context) (string, []string, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return "", nil, err
	}
	return s.controller.Preview(ctx, snap)
}

// Status probes the running proxy and reports what configuration it is
// serving. A missing live file is not an error: it just means no reload has
// ever committed.
func (s *ProxyService) Status(ctx context.Context) (*ProxyStatus, error) {
	status := &ProxyStatus{}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.prober.Probe(probeCtx); err != nil {
		status.Detail = err.Error()
	} else {
		status.Healthy = true
	}

	if data, err := os.ReadFile(s.livePath); err == nil {
		sum := sha256.Sum256(data)
		status.LiveConfigHash = hex.EncodeToString(sum[:])
		if info, err := os.Stat(s.livePath); err == nil {
			mtime := info.ModTime().UTC()
			status.LiveConfigTime = &mtime
		}
	}

	if rules, err := s.rules.ListActive(ctx); err == nil {
		status.ActiveRules = len(rules)
	}
	if backends, err := s.backends.ListActive(ctx); err == nil {
		status.ActiveBackends = len(backends)
	}
	return status, nil
}
