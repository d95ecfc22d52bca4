package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

var (
	// ErrProviderUnavailable はIdPのディスカバリや通信に失敗したことを表す。
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrMissingEmailClaim はIdPのクレームにメールアドレスが含まれないことを表す。
	ErrMissingEmailClaim = errors.New("identity claims lack an email")
)

// IdentityClaims はIdPが認可コード交換後に返すユーザー情報。
type IdentityClaims struct {
	Email       string
	ExternalID  string
	GivenName   string
	FamilyName  string
	DisplayName string
	AvatarURL   string
}

// IdentityProvider は外部IdPとのやり取りを抽象化する。
type IdentityProvider interface {
	// AuthorizationURL はブラウザを誘導するIdPの認可URLを生成する。
	AuthorizationURL(ctx context.Context, scopes []string, redirectURI string) (string, error)

	// ExchangeCode は認可コードを交換し、IdPが証明したクレームを返す。
	// メールアドレスを取得できない場合はErrMissingEmailClaimを返す。
	ExchangeCode(ctx context.Context, code, redirectURI string, scopes []string) (*IdentityClaims, error)
}

// claimsFromMap はIDトークンまたはuserinfoのクレームをIdentityClaimsに変換する。
// メールアドレスはpreferred_username（"@"を含む場合）、次にemailの順で採用する。
// 外部IDはoid（ディレクトリ上の不変ID）、次にsubの順で採用する。
func claimsFromMap(raw map[string]any) (*IdentityClaims, error) {
	c := &IdentityClaims{
		ExternalID:  firstString(raw, "oid", "sub"),
		GivenName:   firstString(raw, "given_name"),
		FamilyName:  firstString(raw, "family_name"),
		DisplayName: firstString(raw, "name"),
		AvatarURL:   firstString(raw, "picture"),
	}

	if upn := firstString(raw, "preferred_username"); strings.Contains(upn, "@") {
		c.Email = upn
	} else {
		c.Email = firstString(raw, "email")
	}

	if c.DisplayName == "" {
		c.DisplayName = strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	}

	if c.ExternalID == "" {
		return nil, errors.New("identity claims lack a subject")
	}
	if c.Email == "" {
		return nil, ErrMissingEmailClaim
	}
	return c, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// newState は認可リクエストのstateパラメータ用のランダム値を生成する。
func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// exchangeError は認可コード交換の失敗を分類する。
// IdPがエラー応答を返した場合はコード不正として扱い、通信自体の失敗はErrProviderUnavailableで包む。
func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return fmt.Errorf("%w: failed to exchange authorization code: %w", ErrProviderUnavailable, err)
}
