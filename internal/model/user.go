package model

import (
	"strings"
	"time"
)

// Role はアカウントのロールを表す。
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
	RoleUser    Role = "user"
)

// ValidRoles は許可されたロールの一覧。
var ValidRoles = []Role{RoleAdmin, RoleManager, RoleStaff, RoleUser}

// ParseRole は文字列をRoleに変換する。許可リスト外の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	for _, r := range ValidRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Account はゲートウェイが管理するアカウントを表す。
// PasswordHashとExternalIDの少なくとも一方は必ず設定される。
// 空文字列は「未設定」を意味する。
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	ExternalID   string
	FirstName    string
	LastName     string
	DisplayName  string
	AvatarURL    string
	Role         Role
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// HasPassword はローカルパスワードが設定されているかを返す。
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// HasExternalIdentity は外部IdPと紐付いているかを返す。
func (a *Account) HasExternalIdentity() bool {
	return a.ExternalID != ""
}

// IsAdministrator は管理者フラグまたはadminロールを持つかを返す。
func (a *Account) IsAdministrator() bool {
	return a.IsAdmin || a.Role == RoleAdmin
}

// Safe はクレデンシャル系フィールドを除いた公開用の射影を返す。
func (a *Account) Safe() SafeAccount {
	return SafeAccount{
		ID:          a.ID,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		DisplayName: a.DisplayName,
		AvatarURL:   a.AvatarURL,
		Role:        a.Role,
		IsAdmin:     a.IsAdmin,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}

// SafeAccount はAPIレスポンスに含めてよいアカウント情報。
// password_hashとexternal_idは含まない。
type SafeAccount struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Role        Role       `json:"role"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login,omitempty"`
}

// AccountPatch はアカウントの部分更新内容。nilのフィールドは既存値を維持する。
type AccountPatch struct {
	Email        *string
	PasswordHash *string
	ExternalID   *string
	FirstName    *string
	LastName     *string
	DisplayName  *string
	AvatarURL    *string
	Role         *Role
	IsAdmin      *bool
	IsActive     *bool
}

// AccountQuery はアカウント一覧取得の検索条件。
type AccountQuery struct {
	Page      int
	Limit     int
	Keyword   string
	Domain    string
	Role      Role
	IsActive  *bool
	SortBy    string
	SortOrder string
}

// 一覧取得のページング既定値
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// AccountSortColumns は一覧の並び替えに指定できるカラムの許可リスト。
var AccountSortColumns = map[string]bool{
	"id":            true,
	"email":         true,
	"first_name":    true,
	"last_name":     true,
	"display_name":  true,
	"role":          true,
	"is_active":     true,
	"created_at":    true,
	"updated_at":    true,
	"last_login_at": true,
}

// Normalized はページ番号・件数・並び順を許容範囲に丸めたコピーを返す。
// 許可リスト外のソートカラムはcreated_at、並び順はasc以外をdescとして扱う。
func (q AccountQuery) Normalized() AccountQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if !AccountSortColumns[q.SortBy] {
		q.SortBy = "created_at"
	}
	if strings.EqualFold(q.SortOrder, "asc") {
		q.SortOrder = "ASC"
	} else {
		q.SortOrder = "DESC"
	}
	q.Keyword = strings.TrimSpace(q.Keyword)
	q.Domain = NormalizeDomain(q.Domain)
	return q
}

// Pagination はページネーション情報。
type Pagination struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// NewPagination は総件数とページ指定からPaginationを組み立てる。
func NewPagination(total, page, limit int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// AccountPage はアカウント一覧の1ページ分。
type AccountPage struct {
	Accounts   []*Account
	Pagination Pagination
}

// NormalizeEmail はメールアドレスを比較用に正規化する（前後空白除去・小文字化）。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
