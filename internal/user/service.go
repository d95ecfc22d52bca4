// Package user はアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/idgate/internal/model"
	"github.com/hitoshi/idgate/internal/repository"
)

// RoleUpdater はロール変更と管理者フラグの同期を行う。auth.Resolverが実装する。
type RoleUpdater interface {
	UpdateRole(ctx context.Context, account *model.Account, role string) (*model.Account, error)
}

// PasswordHasher は初期管理者のパスワードハッシュ生成に使用する。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Service はアカウント管理のサービス層。
// 一覧・参照・有効/無効の切替・ロール変更と、初期管理者の投入を提供する。
type Service struct {
	accounts       repository.AccountRepository
	roles          RoleUpdater
	hasher         PasswordHasher
	bootstrapEmail string
}

// NewService はServiceの新しいインスタンスを生成する。
// bootstrapEmailのアカウントは無効化・ロール変更から保護される。
func NewService(
	accounts repository.AccountRepository,
	roles RoleUpdater,
	hasher PasswordHasher,
	bootstrapEmail string,
) *Service {
	return &Service{
		accounts:       accounts,
		roles:          roles,
		hasher:         hasher,
		bootstrapEmail: model.NormalizeEmail(bootstrapEmail),
	}
}

// List は検索条件に一致するアカウントを1ページ分返す。
func (s *Service) List(ctx context.Context, q model.AccountQuery) (*model.AccountPage, error) {
	page, err := s.accounts.List(ctx, q.Normalized())
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return page, nil
}

// Get はIDでアカウントを取得する。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// ToggleStatus はアカウントの有効/無効を反転する。
// 初期管理者の無効化と、操作者自身のアカウントの変更は拒否する。
func (s *Service) ToggleStatus(ctx context.Context, actorID, id string) (*model.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.isBootstrapAdmin(account) && account.IsActive {
		return nil, model.NewBootstrapAdminProtectedError()
	}
	if account.ID == actorID {
		return nil, model.NewSelfModificationError()
	}

	active := !account.IsActive
	updated, err := s.accounts.Update(ctx, id, model.AccountPatch{IsActive: &active})
	if err != nil {
		return nil, fmt.Errorf("failed to toggle account status: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("account status changed",
		slog.String("actor_id", actorID),
		slog.String("account_id", id),
		slog.Bool("is_active", updated.IsActive),
	)
	return updated, nil
}

// UpdateRole はアカウントのロールを変更する。
// 許可リスト外のロール、初期管理者、操作者自身は拒否する。
func (s *Service) UpdateRole(ctx context.Context, actorID, id, role string) (*model.Account, error) {
	if _, ok := model.ParseRole(role); !ok {
		return nil, model.NewInvalidRoleError(role)
	}

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.isBootstrapAdmin(account) {
		return nil, model.NewBootstrapAdminProtectedError()
	}
	if account.ID == actorID {
		return nil, model.NewSelfModificationError()
	}

	updated, err := s.roles.UpdateRole(ctx, account, role)
	if err != nil {
		return nil, err
	}

	slog.Info("account role changed",
		slog.String("actor_id", actorID),
		slog.String("account_id", id),
		slog.String("role", string(updated.Role)),
	)
	return updated, nil
}

// SeedBootstrapAdmin は初期管理者が存在しない場合に作成する。作成した場合はtrueを返す。
// 既に存在する場合は何もしない（パスワードやロールも変更しない）。
func (s *Service) SeedBootstrapAdmin(ctx context.Context, password string) (bool, error) {
	existing, err := s.accounts.FindByEmail(ctx, s.bootstrapEmail)
	if err != nil {
		return false, fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	if password == "" {
		return false, errors.New("BOOTSTRAP_ADMIN_PASSWORD is required to create the bootstrap admin")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}

	_, err = s.accounts.Create(ctx, &model.Account{
		ID:           uuid.NewString(),
		Email:        s.bootstrapEmail,
		PasswordHash: hash,
		FirstName:    "Admin",
		DisplayName:  "Administrator",
		Role:         model.RoleAdmin,
		IsAdmin:      true,
		IsActive:     true,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// 複数インスタンスが同時に起動した場合
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	slog.Info("bootstrap admin created", slog.String("email", s.bootstrapEmail))
	return true, nil
}

func (s *Service) isBootstrapAdmin(account *model.Account) bool {
	return s.bootstrapEmail != "" && model.NormalizeEmail(account.Email) == s.bootstrapEmail
}
