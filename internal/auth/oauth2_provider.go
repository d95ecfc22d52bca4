package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// OAuth2Config はOIDCディスカバリを持たないOAuth 2.0プロバイダーの設定。
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string

	// HTTPClient はIdPとの通信に使用する。nilの場合はタイムアウト付きの既定クライアントを使う。
	HTTPClient *http.Client
}

// OAuth2Provider は認可コードフローとuserinfoエンドポイントでユーザー情報を取得する。
type OAuth2Provider struct {
	cfg    OAuth2Config
	client *http.Client
}

// NewOAuth2Provider はOAuth2Providerを生成する。
func NewOAuth2Provider(cfg OAuth2Config) *OAuth2Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuth2Provider{cfg: cfg, client: client}
}

func (p *OAuth2Provider) oauth2Config(redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.cfg.AuthURL,
			TokenURL: p.cfg.TokenURL,
		},
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}

// AuthorizationURL はIdPの認可エンドポイントへのURLを生成する。
func (p *OAuth2Provider) AuthorizationURL(_ context.Context, scopes []string, redirectURI string) (string, error) {
	state, err := newState()
	if err != nil {
		return "", err
	}
	return p.oauth2Config(redirectURI, scopes).AuthCodeURL(state), nil
}

// ExchangeCode は認可コードをアクセストークンに交換し、userinfoエンドポイントからクレームを取得する。
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code, redirectURI string, scopes []string) (*IdentityClaims, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	conf := p.oauth2Config(redirectURI, scopes)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := conf.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: user info request failed: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	return claimsFromMap(raw)
}

// compile-time interface check
var _ IdentityProvider = (*OAuth2Provider)(nil)
