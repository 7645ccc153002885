package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Backend is an upstream service the proxy forwards traffic to.
type Backend struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Host        string    `json:"host" db:"host"`
	Port        int       `json:"port" db:"port"`
	Scheme      string    `json:"scheme" db:"scheme"` // "http" or "https"
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedBy   uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type BackendRepository interface {
	Create(ctx context.Context, b *Backend) error
	GetByID(ctx context.Context, id uuid.UUID) (*Backend, error)
	List(ctx context.Context) ([]Backend, error)
	ListActive(ctx context.Context) ([]Backend, error)
	Update(ctx context.Context, b *Backend) error
	Delete(ctx context.Context, id uuid.UUID) error
}
