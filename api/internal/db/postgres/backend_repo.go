package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irgordon/vela/api/internal/core/domain"
)

const backendColumns = `id, name, host, port, scheme, description, is_active, created_by, created_at, updated_at`

type BackendRepository struct {
	pool *pgxpool.Pool
}

func NewBackendRepository(pool *pgxpool.Pool) *BackendRepository {
	return &BackendRepository{pool: pool}
}

func (r *BackendRepository) Create(ctx context.Context, b *domain.Backend) error {
	query := `
		INSERT INTO backends (id, name, host, port, scheme, description, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	b.ID = uuid.New()
	err := r.pool.QueryRow(ctx, query,
		b.ID, b.Name, b.Host, b.Port, b.Scheme, b.Description, b.IsActive, b.CreatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *BackendRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Backend, error) {
	query := fmt.Sprintf(`SELECT %s FROM backends WHERE id = $1`, backendColumns)
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	b, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Backend])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BackendRepository) List(ctx context.Context) ([]domain.Backend, error) {
	query := fmt.Sprintf(`SELECT %s FROM backends ORDER BY name ASC`, backendColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Backend])
}

func (r *BackendRepository) ListActive(ctx context.Context) ([]domain.Backend, error) {
	query := fmt.Sprintf(`SELECT %s FROM backends WHERE is_active ORDER BY name ASC`, backendColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Backend])
}

func (r *BackendRepository) Update(ctx context.Context, b *domain.Backend) error {
	query := `
		UPDATE backends
		SET name = $2, host = $3, port = $4, scheme = $5, description = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		b.ID, b.Name, b.Host, b.Port, b.Scheme, b.Description, b.IsActive,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// Delete refuses to remove a backend that active rules still point at, so
// the snapshot the engine reads can never reference a missing backend.
func (r *BackendRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var inUse bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rules WHERE backend_id = $1 AND is_active)`, id,
	).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return domain.ErrInUse
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM backends WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
