package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Certificate is a TLS certificate available for rule resolution. The PEM
// material lives on disk at CertPath/KeyPath; the database row only carries
// the paths plus the metadata the resolver needs.
type Certificate struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	DomainPattern string     `json:"domain_pattern" db:"domain_pattern"` // exact host or single-level wildcard "*.example.com"
	CertPath      string     `json:"cert_path" db:"cert_path"`
	KeyPath       string     `json:"key_path" db:"key_path"`
	IsDefault     bool       `json:"is_default" db:"is_default"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	UploadedBy    uuid.UUID  `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type CertificateRepository interface {
	Create(ctx context.Context, c *Certificate) error
	GetByID(ctx context.Context, id uuid.UUID) (*Certificate, error)
	List(ctx context.Context) ([]Certificate, error)
	Update(ctx context.Context, c *Certificate) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ClearDefault unsets the default flag everywhere; the write path calls it
	// before flagging a new default so at most one row carries the flag.
	ClearDefault(ctx context.Context) error

	// ListExpiring returns certificates whose expiry falls within the window.
	ListExpiring(ctx context.Context, within time.Duration) ([]Certificate, error)
}
