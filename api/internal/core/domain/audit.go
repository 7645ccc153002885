package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Audit event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AuditEvent records one action against the control plane, including every
// terminal outcome of a reload attempt.
type AuditEvent struct {
	ID           uuid.UUID         `json:"id"`
	ActorID      *uuid.UUID        `json:"actor_id,omitempty"` // nil for system-triggered events
	Action       string            `json:"action"`             // e.g. "created", "deleted", "reload_committed"
	ResourceType string            `json:"resource_type"`      // "backend", "rule", "certificate", "settings", "proxy"
	ResourceID   string            `json:"resource_id"`
	Severity     string            `json:"severity"`
	Diagnostics  string            `json:"diagnostics,omitempty"` // verbatim failure output, empty on success
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	ActorID      *uuid.UUID
	ResourceType string
	Action       string
	Severity     string
	Limit        int
	Offset       int
}

type AuditRepository interface {
	Create(ctx context.Context, e *AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, int, error)
}
