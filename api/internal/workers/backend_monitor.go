package workers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/irgordon/vela/api/internal/core/domain"
)

// BackendMonitor probes active upstream backends and records an audit event
// on every up/down transition. It observes only: reachability never changes
// the generated configuration.
type BackendMonitor struct {
	backends    domain.BackendRepository
	audit       domain.AuditRepository
	httpClient  *http.Client
	logger      *slog.Logger
	interval    time.Duration
	concurrency int

	mu   sync.Mutex
	down map[string]struct{} // backends currently known unreachable
}

func NewBackendMonitor(
	backends domain.BackendRepository,
	audit domain.AuditRepository,
	logger *slog.Logger,
	interval time.Duration,
) *BackendMonitor {
	return &BackendMonitor{
		backends:    backends,
		audit:       audit,
		logger:      logger,
		interval:    interval,
		concurrency: 10,
		down:        make(map[string]struct{}),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			// Any responsive listener counts as up; don't chase redirects.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (m *BackendMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.performHealthChecks(ctx)
		}
	}
}

func (m *BackendMonitor) performHealthChecks(ctx context.Context) {
	backends, err := m.backends.ListActive(ctx)
	if err != nil {
		m.logger.Error("failed to list active backends", slog.Any("error", err))
		return
	}

	// Concurrency control via semaphore
	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for _, backend := range backends {
		wg.Add(1)

		go func(b domain.Backend) {
			defer wg.Done()

			// Jitter: prevent synchronized spikes against the upstreams
			time.Sleep(time.Duration(rand.Intn(2000)) * time.Millisecond)

			sem <- struct{}{}
			defer func() { <-sem }()

			// Per-check timeout: one zombie upstream must not hang the sweep
			checkCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
			defer cancel()

			m.checkBackend(checkCtx, b)
		}(backend)
	}
	wg.Wait()
}

func (m *BackendMonitor) checkBackend(ctx context.Context, backend domain.Backend) {
	url := fmt.Sprintf("%s://%s:%d/", backend.Scheme, backend.Host, backend.Port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := m.httpClient.Do(req)

	// "Up" means any responsive HTTP listener; a 401 or 404 still proves the
	// process is alive behind the port.
	isUp := err == nil && resp != nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}

	key := backend.ID.String()
	m.mu.Lock()
	_, wasDown := m.down[key]
	if isUp {
		delete(m.down, key)
	} else {
		m.down[key] = struct{}{}
	}
	m.mu.Unlock()

	switch {
	case !isUp && !wasDown:
		m.record(ctx, backend, "backend_unreachable", domain.SeverityWarning, err)
	case isUp && wasDown:
		m.record(ctx, backend, "backend_recovered", domain.SeverityInfo, nil)
	}
}

func (m *BackendMonitor) record(ctx context.Context, backend domain.Backend, action, severity string, cause error) {
	diagnostics := ""
	if cause != nil {
		diagnostics = cause.Error()
	}
	m.logger.Warn("backend health transition",
		slog.String("backend", backend.Name),
		slog.String("action", action))

	event := &domain.AuditEvent{
		Action:       action,
		ResourceType: "backend",
		ResourceID:   backend.ID.String(),
		Severity:     severity,
		Diagnostics:  diagnostics,
		Metadata:     map[string]string{"name": backend.Name},
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.audit.Create(ctx, event); err != nil {
		m.logger.Error("failed to record backend transition", slog.Any("error", err))
	}
}
