// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/idgate/internal/model"
)

// ErrDuplicate は一意制約（メールアドレス・外部ID・ドメイン名）に違反した場合に返される。
var ErrDuplicate = errors.New("duplicate record")

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByExternalID は外部IdPのアカウント識別子でアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.Account, error)

	// Create はアカウントを作成し、DBが付与した値を含む行を返す。
	// メールアドレスまたは外部IDが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, account *model.Account) (*model.Account, error)

	// Update はpatchのnilでないフィールドのみを更新し、更新後の行を返す。
	// 対象が存在しない場合はnilを返す。
	Update(ctx context.Context, id string, patch model.AccountPatch) (*model.Account, error)

	// UpdateLastLogin は最終ログイン日時を更新する。既存値より過去の日時では巻き戻さない。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) (*model.Account, error)

	// List は検索条件に一致するアカウントの総件数と1ページ分を返す。
	List(ctx context.Context, query model.AccountQuery) (*model.AccountPage, error)
}

// DomainRepository は許可ドメインの永続化インターフェース。
type DomainRepository interface {
	// FindByID は指定IDの許可ドメインを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AllowedDomain, error)

	// FindByName はドメイン名（大文字小文字を区別しない）で検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.AllowedDomain, error)

	// IsActiveDomain はドメイン名に完全一致する有効な行が存在するかを返す。
	IsActiveDomain(ctx context.Context, name string) (bool, error)

	// ListActive は有効な許可ドメインをドメイン名順に返す。
	ListActive(ctx context.Context) ([]*model.AllowedDomain, error)

	// ListAll は全ての許可ドメインをドメイン名順に返す。
	ListAll(ctx context.Context) ([]*model.AllowedDomain, error)

	// Create は許可ドメインを作成する。ドメイン名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, domain *model.AllowedDomain) (*model.AllowedDomain, error)

	// Update はpatchのnilでないフィールドのみを更新する。対象が存在しない場合はnilを返す。
	Update(ctx context.Context, id string, patch model.DomainPatch) (*model.AllowedDomain, error)

	// Delete は許可ドメインを削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id string) (bool, error)
}
