package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irgordon/vela/api/internal/core/domain"
)

type RuleRepository struct {
	pool *pgxpool.Pool
}

func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

const ruleColumns = `id, domain, backend_id, certificate_id, path_pattern,
	force_https, enable_hsts, hsts_max_age, rate_limit, ip_allowlist,
	security_headers, is_active, created_by, created_at, updated_at`

// Create persists a rule. The partial unique index on (domain) WHERE
// is_active enforces the active-domain uniqueness invariant at the database
// level; a violation surfaces as ErrConflict.
func (r *RuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
	allowlist, err := json.Marshal(rule.IPAllowlist)
	if err != nil {
		return err
	}

	rule.ID = uuid.New()
	query := `
		INSERT INTO rules (id, domain, backend_id, certificate_id, path_pattern,
			force_https, enable_hsts, hsts_max_age, rate_limit, ip_allowlist,
			security_headers, is_active, created_by)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING domain, created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		rule.ID, rule.Domain, rule.BackendID, rule.CertificateID, rule.PathPattern,
		rule.ForceHTTPS, rule.EnableHSTS, rule.HSTSMaxAge, rule.RateLimit, allowlist,
		rule.SecurityHeaders, rule.IsActive, rule.CreatedBy,
	).Scan(&rule.Domain, &rule.CreatedAt, &rule.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	query := fmt.Sprintf(`SELECT %s FROM rules WHERE id = $1`, ruleColumns)
	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rule, err
}

func (r *RuleRepository) List(ctx context.Context) ([]domain.Rule, error) {
	return r.listWhere(ctx, "")
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]domain.Rule, error) {
	return r.listWhere(ctx, "WHERE is_active")
}

func (r *RuleRepository) listWhere(ctx context.Context, where string) ([]domain.Rule, error) {
	query := fmt.Sprintf(`SELECT %s FROM rules %s ORDER BY domain ASC`, ruleColumns, where)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) Update(ctx context.Context, rule *domain.Rule) error {
	allowlist, err := json.Marshal(rule.IPAllowlist)
	if err != nil {
		return err
	}

	query := `
		UPDATE rules
		SET domain = lower($2), backend_id = $3, certificate_id = $4, path_pattern = $5,
			force_https = $6, enable_hsts = $7, hsts_max_age = $8, rate_limit = $9,
			ip_allowlist = $10, security_headers = $11, is_active = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING domain, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		rule.ID, rule.Domain, rule.BackendID, rule.CertificateID, rule.PathPattern,
		rule.ForceHTTPS, rule.EnableHSTS, rule.HSTSMaxAge, rule.RateLimit,
		allowlist, rule.SecurityHeaders, rule.IsActive,
	).Scan(&rule.Domain, &rule.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanRule handles the JSONB allowlist column, which pgx cannot map onto
// the struct directly.
func scanRule(row pgx.Row) (*domain.Rule, error) {
	var rule domain.Rule
	var allowlist []byte
	err := row.Scan(
		&rule.ID, &rule.Domain, &rule.BackendID, &rule.CertificateID, &rule.PathPattern,
		&rule.ForceHTTPS, &rule.EnableHSTS, &rule.HSTSMaxAge, &rule.RateLimit, &allowlist,
		&rule.SecurityHeaders, &rule.IsActive, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(allowlist) > 0 {
		if err := json.Unmarshal(allowlist, &rule.IPAllowlist); err != nil {
			return nil, err
		}
	}
	return &rule, nil
}
