package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/irgordon/vela/api/internal/core/domain"
	"github.com/irgordon/vela/api/internal/telemetry"
)

// AuditService persists audit events and streams them to connected clients.
// It implements the engine's AuditEmitter, so every terminal reload outcome
// lands in both the database and the live event feed.
type AuditService struct {
	repo   domain.AuditRepository
	hub    *telemetry.Hub
	logger *slog.Logger
}

func NewAuditService(repo domain.AuditRepository, hub *telemetry.Hub, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		hub:    hub,
		logger: logger,
	}
}

// Emit records one event, best-effort. Auditing must never fail the reload
// pipeline it observes, so persistence errors are logged and swallowed.
func (s *AuditService) Emit(ctx context.Context, event domain.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// The reload may be running under a request context that has already
	// been canceled by the client; the audit record still has to land.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.Create(persistCtx, &event); err != nil {
		s.logger.Error("failed to persist audit event",
			slog.String("action", event.Action),
			slog.Any("error", err))
	}

	if payload, err := json.Marshal(event); err == nil {
		s.hub.Broadcast(payload)
	}
}

// Record is the convenience entry point for CRUD handlers.
func (s *AuditService) Record(ctx context.Context, actorID *uuid.UUID, action, resourceType, resourceID string, metadata map[string]string) {
	s.Emit(ctx, domain.AuditEvent{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Severity:     domain.SeverityInfo,
		Metadata:     metadata,
	})
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, int, error) {
	return s.repo.List(ctx, filter)
}
