package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/idgate/internal/model"
	"github.com/hitoshi/idgate/internal/repository"
)

// Resolver は外部IDやローカルクレデンシャルを永続化済みアカウントに対応付ける。
type Resolver struct {
	accounts repository.AccountRepository
	hasher   PasswordHasher
	now      func() time.Time
	newID    func() string
}

// NewResolver はResolverを生成する。
func NewResolver(accounts repository.AccountRepository, hasher PasswordHasher) *Resolver {
	return &Resolver{
		accounts: accounts,
		hasher:   hasher,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// FindByExternalID は外部IDでアカウントを検索する。見つからない場合はnilを返す。
func (r *Resolver) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	return r.accounts.FindByExternalID(ctx, externalID)
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *Resolver) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.accounts.FindByEmail(ctx, model.NormalizeEmail(email))
}

// CreateFromExternalIdentity はIdPのクレームから一般ユーザーとしてアカウントを作成する。
// パスワードを持たないため、外部IDが無いクレームからは作成しない。
func (r *Resolver) CreateFromExternalIdentity(ctx context.Context, claims *IdentityClaims) (*model.Account, error) {
	if claims.ExternalID == "" {
		return nil, errors.New("cannot create account without external identity")
	}

	account, err := r.accounts.Create(ctx, &model.Account{
		ID:          r.newID(),
		Email:       model.NormalizeEmail(claims.Email),
		ExternalID:  claims.ExternalID,
		FirstName:   claims.GivenName,
		LastName:    claims.FamilyName,
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
		Role:        model.RoleUser,
		IsAdmin:     false,
		IsActive:    true,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("account created from external identity",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)
	return account, nil
}

// LinkExternalIdentity は外部IDをアカウントに紐付け、プロフィールをクレームで更新する。
// クレームが空の項目は既存の値を維持する。
func (r *Resolver) LinkExternalIdentity(ctx context.Context, account *model.Account, claims *IdentityClaims) (*model.Account, error) {
	patch := model.AccountPatch{
		ExternalID:  nonEmpty(claims.ExternalID),
		FirstName:   nonEmpty(claims.GivenName),
		LastName:    nonEmpty(claims.FamilyName),
		DisplayName: nonEmpty(claims.DisplayName),
		AvatarURL:   nonEmpty(claims.AvatarURL),
	}

	updated, err := r.accounts.Update(ctx, account.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to link external identity: %w", err)
	}
	if updated == nil {
		return nil, fail(KindNotFound, errors.New("account disappeared while linking"))
	}

	slog.Info("external identity linked",
		slog.String("account_id", updated.ID),
	)
	return updated, nil
}

// RecordLogin は最終ログイン日時を現在時刻に更新する。
func (r *Resolver) RecordLogin(ctx context.Context, account *model.Account) (*model.Account, error) {
	updated, err := r.accounts.UpdateLastLogin(ctx, account.ID, r.now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fail(KindNotFound, errors.New("account not found while recording login"))
	}
	return updated, nil
}

// UpdateRole はロールを変更し、管理者フラグをロールに合わせて同期する。
// 許可リスト外のロールは*model.APIErrorを返す。
func (r *Resolver) UpdateRole(ctx context.Context, account *model.Account, role string) (*model.Account, error) {
	parsed, ok := model.ParseRole(role)
	if !ok {
		return nil, model.NewInvalidRoleError(role)
	}
	isAdmin := parsed == model.RoleAdmin

	updated, err := r.accounts.Update(ctx, account.ID, model.AccountPatch{
		Role:    &parsed,
		IsAdmin: &isAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}
	return updated, nil
}

// Authenticate はローカルパスワードでアカウントを認証する。
// 判定順は 未登録 → 無効 → 外部IDのみ → パスワード不一致。成功時は最終ログイン日時を記録する。
func (r *Resolver) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, fail(KindStorage, err)
	}
	if account == nil {
		return nil, fail(KindNotFound, nil)
	}
	if !account.IsActive {
		return nil, &Failure{Kind: KindAccountInactive, Email: account.Email}
	}
	if !account.HasPassword() {
		return nil, fail(KindExternalOnly, nil)
	}
	if !r.hasher.Verify(password, account.PasswordHash) {
		return nil, fail(KindBadCredentials, nil)
	}

	updated, err := r.RecordLogin(ctx, account)
	if err != nil {
		return nil, AsFailure(err)
	}
	return updated, nil
}

// Reconcile はIdPのクレームに対応するアカウントを決定する。
// 外部ID一致 → メールアドレス一致 → 新規作成 の順に解決する。
// 同一IDの同時コールバックで作成が一意制約に違反した場合は、再読込して既存アカウントとして扱う。
func (r *Resolver) Reconcile(ctx context.Context, claims *IdentityClaims) (*model.Account, error) {
	account, err := r.lookup(ctx, claims)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	created, err := r.CreateFromExternalIdentity(ctx, claims)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, fail(KindStorage, err)
	}

	slog.Info("concurrent account creation detected, re-reading",
		slog.String("email", model.NormalizeEmail(claims.Email)),
	)
	account, err = r.lookup(ctx, claims)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fail(KindStorage, errors.New("account missing after duplicate insert"))
	}
	return account, nil
}

// lookup は外部ID、次にメールアドレスでアカウントを探す。
// メールアドレスで一致し外部IDが未設定の場合は紐付けを行う。
func (r *Resolver) lookup(ctx context.Context, claims *IdentityClaims) (*model.Account, error) {
	account, err := r.FindByExternalID(ctx, claims.ExternalID)
	if err != nil {
		return nil, fail(KindStorage, err)
	}
	if account != nil {
		return account, nil
	}

	account, err = r.FindByEmail(ctx, claims.Email)
	if err != nil {
		return nil, fail(KindStorage, err)
	}
	if account == nil {
		return nil, nil
	}

	if account.HasExternalIdentity() {
		// 別の外部IDに紐付いたアカウントは付け替えない
		if account.ExternalID != claims.ExternalID {
			slog.Warn("email matched an account linked to a different external identity",
				slog.String("account_id", account.ID),
			)
		}
		return account, nil
	}

	// 無効なアカウントは紐付けずにそのまま返し、呼び出し側で拒否させる
	if !account.IsActive {
		return account, nil
	}

	linked, err := r.LinkExternalIdentity(ctx, account, claims)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			account, err = r.FindByExternalID(ctx, claims.ExternalID)
			if err != nil {
				return nil, fail(KindStorage, err)
			}
			return account, nil
		}
		return nil, AsFailure(err)
	}
	return linked, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
