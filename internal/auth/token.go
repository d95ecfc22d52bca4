package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/idgate/internal/model"
)

// ErrInvalidToken はセッショントークンの署名不正・期限切れ・形式不正を表す。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッショントークンに埋め込むアカウント情報。
type Claims struct {
	AccountID string     `json:"id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	IsAdmin   bool       `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenCodec はHS256で署名された有効期限付きセッショントークンを発行・検証する。
// 検証時にデータストアは参照しない。
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec はTokenCodecを生成する。
// secretが空の場合は安全でない既定値にフォールバックせずエラーを返す。
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL はトークンの有効期間を返す。
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue はアカウントのid・メール・ロール・管理者フラグを埋め込んだトークンを発行する。
func (c *TokenCodec) Issue(account *model.Account) (string, error) {
	now := c.now()
	claims := Claims{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		IsAdmin:   account.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたクレームを返す。
// 失敗時は常にErrInvalidTokenをラップしたエラーを返す。
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired はVerifyのエラーが有効期限切れによるものかを返す。
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
