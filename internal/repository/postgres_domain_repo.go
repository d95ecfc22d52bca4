package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/idgate/internal/model"
)

const domainColumns = `id, domain_name, description, is_active, created_at, updated_at`

// PostgresDomainRepo はPostgreSQLを使用した許可ドメインリポジトリ。
type PostgresDomainRepo struct {
	db *sql.DB
}

// NewPostgresDomainRepo はPostgresDomainRepoを生成する。
func NewPostgresDomainRepo(db *sql.DB) *PostgresDomainRepo {
	return &PostgresDomainRepo{db: db}
}

func scanDomain(row rowScanner) (*model.AllowedDomain, error) {
	d := &model.AllowedDomain{}
	if err := row.Scan(&d.ID, &d.DomainName, &d.Description, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return d, nil
}

// FindByID は指定IDの許可ドメインを取得する。見つからない場合はnilを返す。
func (r *PostgresDomainRepo) FindByID(ctx context.Context, id string) (*model.AllowedDomain, error) {
	d, err := scanDomain(r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM allowed_domains WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find domain by ID: %w", err)
	}
	return d, nil
}

// FindByName はドメイン名で検索する。見つからない場合はnilを返す。
func (r *PostgresDomainRepo) FindByName(ctx context.Context, name string) (*model.AllowedDomain, error) {
	d, err := scanDomain(r.db.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM allowed_domains WHERE lower(domain_name) = $1`,
		model.NormalizeDomain(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find domain by name: %w", err)
	}
	return d, nil
}

// IsActiveDomain はドメイン名に完全一致する有効な行が存在するかを返す。
// ワイルドカードやサフィックス一致は行わない。
func (r *PostgresDomainRepo) IsActiveDomain(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM allowed_domains WHERE lower(domain_name) = $1 AND is_active = true)`,
		model.NormalizeDomain(name),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check allowed domain: %w", err)
	}
	return exists, nil
}

// ListActive は有効な許可ドメインをドメイン名順に返す。
func (r *PostgresDomainRepo) ListActive(ctx context.Context) ([]*model.AllowedDomain, error) {
	return r.list(ctx, `SELECT `+domainColumns+` FROM allowed_domains WHERE is_active = true ORDER BY domain_name ASC`)
}

// ListAll は全ての許可ドメインをドメイン名順に返す。
func (r *PostgresDomainRepo) ListAll(ctx context.Context) ([]*model.AllowedDomain, error) {
	return r.list(ctx, `SELECT `+domainColumns+` FROM allowed_domains ORDER BY domain_name ASC`)
}

func (r *PostgresDomainRepo) list(ctx context.Context, query string) ([]*model.AllowedDomain, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	domains := []*model.AllowedDomain{}
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate domains: %w", err)
	}
	return domains, nil
}

// Create は許可ドメインを作成する。
func (r *PostgresDomainRepo) Create(ctx context.Context, domain *model.AllowedDomain) (*model.AllowedDomain, error) {
	d, err := scanDomain(r.db.QueryRowContext(ctx,
		`INSERT INTO allowed_domains (id, domain_name, description, is_active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+domainColumns,
		domain.ID, model.NormalizeDomain(domain.DomainName), domain.Description, domain.IsActive,
	))
	if err != nil {
		return nil, wrapWriteError("failed to create domain", err)
	}
	return d, nil
}

// Update はpatchのnilでないフィールドのみを更新する。対象が存在しない場合はnilを返す。
func (r *PostgresDomainRepo) Update(ctx context.Context, id string, patch model.DomainPatch) (*model.AllowedDomain, error) {
	var name any
	if patch.DomainName != nil {
		name = model.NormalizeDomain(*patch.DomainName)
	}

	d, err := scanDomain(r.db.QueryRowContext(ctx,
		`UPDATE allowed_domains SET
		    domain_name = COALESCE($2, domain_name),
		    description = COALESCE($3, description),
		    is_active = COALESCE($4, is_active),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING `+domainColumns,
		id, name, optString(patch.Description), optBool(patch.IsActive),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapWriteError("failed to update domain", err)
	}
	return d, nil
}

// Delete は許可ドメインを削除する。削除した場合はtrueを返す。
func (r *PostgresDomainRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM allowed_domains WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete domain: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ DomainRepository = (*PostgresDomainRepo)(nil)
