// Package allowlist はログインを許可するメールドメインの管理を提供する。
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/idgate/internal/model"
	"github.com/hitoshi/idgate/internal/repository"
)

const maxDomainLength = 253

// domainPattern はラベルを"."で区切ったホスト名（2ラベル以上）に一致する。
var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// CreateInput は許可ドメイン作成の入力。
type CreateInput struct {
	DomainName  string
	Description string
	IsActive    *bool
}

// Service は許可ドメインのサービス層。
// primaryDomainは削除・無効化から保護される。
type Service struct {
	domains       repository.DomainRepository
	primaryDomain string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(domains repository.DomainRepository, primaryDomain string) *Service {
	return &Service{
		domains:       domains,
		primaryDomain: model.NormalizeDomain(primaryDomain),
	}
}

// ValidateDomainName は正規化済みのドメイン名を検証する。
func ValidateDomainName(name string) error {
	switch {
	case name == "":
		return model.NewInvalidDomainError("ドメイン名は必須です")
	case strings.Contains(name, "@"):
		return model.NewInvalidDomainError("ドメイン名に@は含められません")
	case len(name) > maxDomainLength || !domainPattern.MatchString(name):
		return model.NewInvalidDomainError("ドメイン名の形式が正しくありません")
	}
	return nil
}

// List は全ての許可ドメインを返す。
func (s *Service) List(ctx context.Context) ([]*model.AllowedDomain, error) {
	domains, err := s.domains.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return domains, nil
}

// Get はIDで許可ドメインを取得する。存在しない場合はDOMAIN_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.AllowedDomain, error) {
	domain, err := s.domains.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find domain: %w", err)
	}
	if domain == nil {
		return nil, model.NewDomainNotFoundError()
	}
	return domain, nil
}

// Create は許可ドメインを登録する。IsActiveが未指定の場合は有効として登録する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.AllowedDomain, error) {
	name := model.NormalizeDomain(in.DomainName)
	if err := ValidateDomainName(name); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	created, err := s.domains.Create(ctx, &model.AllowedDomain{
		ID:          uuid.NewString(),
		DomainName:  name,
		Description: strings.TrimSpace(in.Description),
		IsActive:    active,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, model.NewDuplicateDomainError(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create domain: %w", err)
	}

	slog.Info("allowed domain created", slog.String("domain", name))
	return created, nil
}

// Update は許可ドメインを部分更新する。
// 主ドメインの改名・無効化は拒否する。
func (s *Service) Update(ctx context.Context, id string, patch model.DomainPatch) (*model.AllowedDomain, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.DomainName != nil {
		name := model.NormalizeDomain(*patch.DomainName)
		if err := ValidateDomainName(name); err != nil {
			return nil, err
		}
		patch.DomainName = &name
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		patch.Description = &desc
	}

	if s.isPrimary(current) {
		renamed := patch.DomainName != nil && *patch.DomainName != current.DomainName
		deactivated := patch.IsActive != nil && !*patch.IsActive
		if renamed || deactivated {
			return nil, model.NewPrimaryDomainProtectedError()
		}
	}

	updated, err := s.domains.Update(ctx, id, patch)
	if errors.Is(err, repository.ErrDuplicate) && patch.DomainName != nil {
		return nil, model.NewDuplicateDomainError(*patch.DomainName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update domain: %w", err)
	}
	if updated == nil {
		return nil, model.NewDomainNotFoundError()
	}
	return updated, nil
}

// Toggle は許可ドメインの有効/無効を反転する。主ドメインの無効化は拒否する。
func (s *Service) Toggle(ctx context.Context, id string) (*model.AllowedDomain, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	active := !current.IsActive
	if s.isPrimary(current) && !active {
		return nil, model.NewPrimaryDomainProtectedError()
	}

	updated, err := s.domains.Update(ctx, id, model.DomainPatch{IsActive: &active})
	if err != nil {
		return nil, fmt.Errorf("failed to toggle domain: %w", err)
	}
	if updated == nil {
		return nil, model.NewDomainNotFoundError()
	}

	slog.Info("allowed domain toggled",
		slog.String("domain", updated.DomainName),
		slog.Bool("is_active", updated.IsActive),
	)
	return updated, nil
}

// Delete は許可ドメインを削除する。主ドメインは削除できない。
func (s *Service) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.isPrimary(current) {
		return model.NewPrimaryDomainProtectedError()
	}

	deleted, err := s.domains.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete domain: %w", err)
	}
	if !deleted {
		return model.NewDomainNotFoundError()
	}

	slog.Info("allowed domain deleted", slog.String("domain", current.DomainName))
	return nil
}

// SeedDefaults は未登録のドメインを有効な状態で登録し、登録件数を返す。
// 既存のドメインは有効/無効を含めて変更しない。
func (s *Service) SeedDefaults(ctx context.Context, names []string) (int, error) {
	seeded := 0
	for _, raw := range names {
		name := model.NormalizeDomain(raw)
		if err := ValidateDomainName(name); err != nil {
			slog.Warn("skipping invalid default domain", slog.String("domain", raw))
			continue
		}

		existing, err := s.domains.FindByName(ctx, name)
		if err != nil {
			return seeded, fmt.Errorf("failed to look up domain %s: %w", name, err)
		}
		if existing != nil {
			continue
		}

		_, err = s.domains.Create(ctx, &model.AllowedDomain{
			ID:          uuid.NewString(),
			DomainName:  name,
			Description: "default",
			IsActive:    true,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return seeded, fmt.Errorf("failed to seed domain %s: %w", name, err)
		}
		seeded++
	}

	if seeded > 0 {
		slog.Info("default allowed domains seeded", slog.Int("count", seeded))
	}
	return seeded, nil
}

func (s *Service) isPrimary(d *model.AllowedDomain) bool {
	return s.primaryDomain != "" && d.DomainName == s.primaryDomain
}
