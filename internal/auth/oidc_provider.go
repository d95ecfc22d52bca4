package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig はOpenID Connectプロバイダーの設定。
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string

	// SkipIssuerCheck はマルチテナントのディレクトリのように、
	// ディスカバリ文書のissuerが設定値と一致しないIdPで使用する。
	SkipIssuerCheck bool

	// HTTPClient はIdPとの通信に使用する。nilの場合はタイムアウト付きの既定クライアントを使う。
	HTTPClient *http.Client
}

// OIDCProvider はOpenID ConnectのIdPに対する認可コードフローを提供する。
// ディスカバリは初回利用時に行うため、起動時にIdPが停止していても起動は妨げられない。
type OIDCProvider struct {
	cfg    OIDCConfig
	client *http.Client

	mu       sync.Mutex
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider はOIDCProviderを生成する。
func NewOIDCProvider(cfg OIDCConfig) *OIDCProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCProvider{cfg: cfg, client: client}
}

// discover はディスカバリ結果を返す。失敗した場合はキャッシュせず次回再試行する。
func (p *OIDCProvider) discover(ctx context.Context) (*oidc.Provider, *oidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.provider != nil {
		return p.provider, p.verifier, nil
	}

	// 鍵セットの取得にも同じcontextが使われるため、リクエストのキャンセルから切り離す
	dctx := oidc.ClientContext(context.WithoutCancel(ctx), p.client)
	if p.cfg.SkipIssuerCheck {
		dctx = oidc.InsecureIssuerURLContext(dctx, p.cfg.IssuerURL)
	}

	provider, err := oidc.NewProvider(dctx, p.cfg.IssuerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to discover OIDC provider: %w", ErrProviderUnavailable, err)
	}

	p.provider = provider
	p.verifier = provider.Verifier(&oidc.Config{
		ClientID:        p.cfg.ClientID,
		SkipIssuerCheck: p.cfg.SkipIssuerCheck,
	})
	return p.provider, p.verifier, nil
}

func (p *OIDCProvider) oauth2Config(provider *oidc.Provider, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}
}

// AuthorizationURL はIdPの認可エンドポイントへのURLを生成する。
func (p *OIDCProvider) AuthorizationURL(ctx context.Context, scopes []string, redirectURI string) (string, error) {
	provider, _, err := p.discover(ctx)
	if err != nil {
		return "", err
	}

	state, err := newState()
	if err != nil {
		return "", err
	}
	return p.oauth2Config(provider, redirectURI, scopes).AuthCodeURL(state), nil
}

// ExchangeCode は認可コードをトークンに交換し、IDトークンを検証してクレームを返す。
// IDトークンにメールアドレスが無い場合はuserinfoエンドポイントで補完する。
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code, redirectURI string, scopes []string) (*IdentityClaims, error) {
	provider, verifier, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth2Config(provider, redirectURI, scopes).Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("missing id_token in token response")
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	if !hasEmailClaim(raw) {
		if info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(token)); err == nil {
			var extra map[string]any
			if err := info.Claims(&extra); err == nil {
				for k, v := range extra {
					if _, exists := raw[k]; !exists {
						raw[k] = v
					}
				}
			}
		}
	}

	return claimsFromMap(raw)
}

func hasEmailClaim(raw map[string]any) bool {
	return firstString(raw, "email") != "" || strings.Contains(firstString(raw, "preferred_username"), "@")
}

// compile-time interface check
var _ IdentityProvider = (*OIDCProvider)(nil)
