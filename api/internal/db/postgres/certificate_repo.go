package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irgordon/vela/api/internal/core/domain"
)

const certificateColumns = `id, name, domain_pattern, cert_path, key_path, is_default, expires_at, uploaded_by, created_at, updated_at`

type CertificateRepository struct {
	pool *pgxpool.Pool
}

func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

func (r *CertificateRepository) Create(ctx context.Context, c *domain.Certificate) error {
	// The service layer pre-assigns the ID because the on-disk file names
	// embed it; only generate one when the caller didn't.
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO certificates (id, name, domain_pattern, cert_path, key_path, is_default, expires_at, uploaded_by)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		c.ID, c.Name, c.DomainPattern, c.CertPath, c.KeyPath, c.IsDefault, c.ExpiresAt, c.UploadedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *CertificateRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE id = $1`, certificateColumns)
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[domain.Certificate])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CertificateRepository) List(ctx context.Context) ([]domain.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates ORDER BY name ASC`, certificateColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Certificate])
}

func (r *CertificateRepository) Update(ctx context.Context, c *domain.Certificate) error {
	query := `
		UPDATE certificates
		SET name = $2, domain_pattern = lower($3), cert_path = $4, key_path = $5,
			is_default = $6, expires_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		c.ID, c.Name, c.DomainPattern, c.CertPath, c.KeyPath, c.IsDefault, c.ExpiresAt,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// Delete refuses to remove a certificate that active rules reference
// explicitly; pattern and default matches degrade gracefully instead.
func (r *CertificateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var inUse bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rules WHERE certificate_id = $1 AND is_active)`, id,
	).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return domain.ErrInUse
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearDefault unsets every default flag. The service layer calls it inside
// the same request that flags a new default, keeping the at-most-one
// invariant the resolver relies on.
func (r *CertificateRepository) ClearDefault(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE certificates SET is_default = false, updated_at = NOW() WHERE is_default`)
	return err
}

func (r *CertificateRepository) ListExpiring(ctx context.Context, within time.Duration) ([]domain.Certificate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM certificates
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
	`, certificateColumns)
	rows, err := r.pool.Query(ctx, query, time.Now().UTC().Add(within))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Certificate])
}
