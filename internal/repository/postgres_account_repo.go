package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/idgate/internal/model"
)

const accountColumns = `id, email, password_hash, external_id, first_name, last_name,
		        display_name, avatar_url, role, is_admin, is_active,
		        created_at, updated_at, last_login_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	a := &model.Account{}
	var passwordHash, externalID sql.NullString
	var role string
	var lastLogin sql.NullTime

	err := row.Scan(
		&a.ID, &a.Email, &passwordHash, &externalID, &a.FirstName, &a.LastName,
		&a.DisplayName, &a.AvatarURL, &role, &a.IsAdmin, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}

	a.PasswordHash = nullStringValue(passwordHash)
	a.ExternalID = nullStringValue(externalID)
	a.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return a, nil
}

// findOne は単一行を返すクエリを実行する。行が存在しない場合はnilを返す。
func (r *PostgresAccountRepo) findOne(ctx context.Context, op, query string, args ...any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, "find account by ID",
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	)
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, "find account by email",
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`,
		model.NormalizeEmail(email),
	)
}

// FindByExternalID は外部IDでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	if externalID == "" {
		return nil, nil
	}
	return r.findOne(ctx, "find account by external ID",
		`SELECT `+accountColumns+` FROM accounts WHERE external_id = $1`,
		externalID,
	)
}

// Create はアカウントを作成する。
// 重複時はErrDuplicateをラップしたエラーを返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) (*model.Account, error) {
	role := account.Role
	if role == "" {
		role = model.RoleUser
	}

	created, err := scanAccount(r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, external_id, first_name, last_name,
		                       display_name, avatar_url, role, is_admin, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+accountColumns,
		account.ID, model.NormalizeEmail(account.Email),
		nullString(account.PasswordHash), nullString(account.ExternalID),
		account.FirstName, account.LastName, account.DisplayName, account.AvatarURL,
		string(role), role == model.RoleAdmin, account.IsActive,
	))
	if err != nil {
		return nil, wrapWriteError("failed to create account", err)
	}
	return created, nil
}

// Update はpatchのnilでないフィールドのみを更新する。対象が存在しない場合はnilを返す。
func (r *PostgresAccountRepo) Update(ctx context.Context, id string, patch model.AccountPatch) (*model.Account, error) {
	var role any
	if patch.Role != nil {
		role = string(*patch.Role)
	}
	var email any
	if patch.Email != nil {
		email = model.NormalizeEmail(*patch.Email)
	}

	updated, err := scanAccount(r.db.QueryRowContext(ctx,
		`UPDATE accounts SET
		    email = COALESCE($2, email),
		    password_hash = COALESCE($3, password_hash),
		    external_id = COALESCE($4, external_id),
		    first_name = COALESCE($5, first_name),
		    last_name = COALESCE($6, last_name),
		    display_name = COALESCE($7, display_name),
		    avatar_url = COALESCE($8, avatar_url),
		    role = COALESCE($9, role),
		    is_admin = COALESCE($10, is_admin),
		    is_active = COALESCE($11, is_active),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING `+accountColumns,
		id, email,
		optString(patch.PasswordHash), optString(patch.ExternalID),
		optString(patch.FirstName), optString(patch.LastName),
		optString(patch.DisplayName), optString(patch.AvatarURL),
		role, optBool(patch.IsAdmin), optBool(patch.IsActive),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapWriteError("failed to update account", err)
	}
	return updated, nil
}

// UpdateLastLogin は最終ログイン日時を更新する。
// GREATESTはNULLを無視するため、初回ログイン時はatがそのまま設定される。
func (r *PostgresAccountRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) (*model.Account, error) {
	updated, err := scanAccount(r.db.QueryRowContext(ctx,
		`UPDATE accounts SET
		    last_login_at = GREATEST(last_login_at, $2),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING `+accountColumns,
		id, at,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	return updated, nil
}

// List は検索条件に一致するアカウントの総件数と1ページ分を返す。
// ソートカラムはmodel.AccountSortColumnsの許可リストに限定される。
func (r *PostgresAccountRepo) List(ctx context.Context, query model.AccountQuery) (*model.AccountPage, error) {
	q := query.Normalized()

	var conds []string
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Keyword != "" {
		p := bind("%" + escapeLike(q.Keyword) + "%")
		conds = append(conds, fmt.Sprintf(
			"(email ILIKE %[1]s OR first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR display_name ILIKE %[1]s)", p))
	}
	if q.Domain != "" {
		conds = append(conds, "split_part(email, '@', 2) ILIKE "+bind("%"+escapeLike(q.Domain)+"%"))
	}
	if q.Role != "" {
		conds = append(conds, "role = "+bind(string(q.Role)))
	}
	if q.IsActive != nil {
		conds = append(conds, "is_active = "+bind(*q.IsActive))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM accounts`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	limit := bind(q.Limit)
	offset := bind((q.Page - 1) * q.Limit)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts`+where+
			fmt.Sprintf(" ORDER BY %s %s, id ASC LIMIT %s OFFSET %s", q.SortBy, q.SortOrder, limit, offset),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*model.Account, 0, q.Limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return &model.AccountPage{
		Accounts:   accounts,
		Pagination: model.NewPagination(total, q.Page, q.Limit),
	}, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
