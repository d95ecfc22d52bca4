package model

import (
	"strings"
	"time"
)

// AllowedDomain はログインを許可するメールドメインを表す。
type AllowedDomain struct {
	ID          string    `json:"id"`
	DomainName  string    `json:"domain_name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DomainPatch は許可ドメインの部分更新内容。nilのフィールドは既存値を維持する。
type DomainPatch struct {
	DomainName  *string
	Description *string
	IsActive    *bool
}

// NormalizeDomain はドメイン名を比較用に正規化する。
func NormalizeDomain(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
