package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/idgate/internal/repository"
)

// DomainGate はメールアドレスのドメインが許可ドメインに含まれるかを判定する。
type DomainGate struct {
	domains repository.DomainRepository
	bypass  bool
}

// NewDomainGate はDomainGateを生成する。
// bypassは非本番環境でのみ有効化される開発・テスト用のスイッチで、
// 呼び出し側（config.Config.DomainCheckBypass）で判定済みの値を渡す。
func NewDomainGate(domains repository.DomainRepository, bypass bool) *DomainGate {
	return &DomainGate{domains: domains, bypass: bypass}
}

// EmailDomain は最初の"@"以降を小文字化して返す。
// "@"を含まない、またはドメイン部が空の場合はfalseを返す。
func EmailDomain(email string) (string, bool) {
	at := strings.Index(email, "@")
	if at < 0 {
		return "", false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if domain == "" {
		return "", false
	}
	return domain, true
}

// IsAuthorized はemailのドメインが有効な許可ドメインと完全一致するかを返す。
// ワイルドカードやサフィックス一致は行わない。ストレージのエラーはそのまま返す。
func (g *DomainGate) IsAuthorized(ctx context.Context, email string) (bool, error) {
	domain, ok := EmailDomain(email)
	if !ok {
		slog.Debug("domain gate rejected malformed email")
		return false, nil
	}

	if g.bypass {
		slog.Debug("domain gate bypassed", slog.String("domain", domain))
		return true, nil
	}

	allowed, err := g.domains.IsActiveDomain(ctx, domain)
	if err != nil {
		return false, fmt.Errorf("failed to check allowed domain: %w", err)
	}

	slog.Debug("domain gate decision",
		slog.String("domain", domain),
		slog.Bool("allowed", allowed),
	)
	return allowed, nil
}
