package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Rule maps a frontend domain to a backend plus per-host security toggles.
// The toggles are an enumerated struct, not a free-form map, so the config
// renderer's behavior per flag stays exhaustively testable.
type Rule struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Domain        string     `json:"domain" db:"domain"` // fully qualified, stored lowercase
	BackendID     uuid.UUID  `json:"backend_id" db:"backend_id"`
	CertificateID *uuid.UUID `json:"certificate_id,omitempty" db:"certificate_id"`
	PathPattern   string     `json:"path_pattern" db:"path_pattern"` // location prefix, "/" when empty

	ForceHTTPS      bool     `json:"force_https" db:"force_https"`
	EnableHSTS      bool     `json:"enable_hsts" db:"enable_hsts"`
	HSTSMaxAge      int      `json:"hsts_max_age" db:"hsts_max_age"`
	RateLimit       string   `json:"rate_limit,omitempty" db:"rate_limit"` // e.g. "10r/s", empty = unlimited
	IPAllowlist     []string `json:"ip_allowlist,omitempty" db:"-"`
	SecurityHeaders bool     `json:"security_headers" db:"security_headers"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedBy uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RuleRepository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	ListActive(ctx context.Context) ([]Rule, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id uuid.UUID) error
}
