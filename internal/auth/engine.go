// Package auth はローカルパスワード認証とIdP連携による認証フロー、
// ドメインによる認可、セッショントークンの発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/idgate/internal/model"
	"github.com/hitoshi/idgate/internal/repository"
)

// ログイン方式
const (
	MethodPassword = "password"
	MethodIdP      = "idp"
)

// Recorder はログイン結果とIdP通信時間を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordLogin(method string, outcome string)
	ObserveIdPExchange(d time.Duration)
}

// ProfileSanitizer はIdPから受け取ったプロフィール値を保存前に無害化する。
type ProfileSanitizer interface {
	SanitizeName(s string) string
	SanitizeAvatarURL(s string) string
}

// EngineConfig はIdP連携フローの設定。
type EngineConfig struct {
	RedirectURI string
	Scopes      []string
}

// DomainCheck はドメイン事前確認の結果。
type DomainCheck struct {
	Email          string   `json:"email"`
	IsAllowed      bool     `json:"isAllowed"`
	AllowedDomains []string `json:"allowedDomains"`
}

// Engine はローカルログイン・IdPログイン開始・IdPコールバックの各フローを駆動し、
// 入口によらず同じ形のOutcomeを返す。レスポンスの描画方式には関知しない。
type Engine struct {
	resolver  *Resolver
	gate      *DomainGate
	tokens    *TokenCodec
	idp       IdentityProvider
	domains   repository.DomainRepository
	sanitizer ProfileSanitizer
	recorder  Recorder
	config    EngineConfig
}

// EngineOption はEngineの任意の依存を設定する。
type EngineOption func(*Engine)

// WithSanitizer はプロフィールの無害化処理を設定する。
func WithSanitizer(s ProfileSanitizer) EngineOption {
	return func(e *Engine) { e.sanitizer = s }
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine はEngineを生成する。
func NewEngine(
	resolver *Resolver,
	gate *DomainGate,
	tokens *TokenCodec,
	idp IdentityProvider,
	domains repository.DomainRepository,
	config EngineConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		resolver: resolver,
		gate:     gate,
		tokens:   tokens,
		idp:      idp,
		domains:  domains,
		config:   config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoginWithPassword はメールアドレスとパスワードで認証し、セッショントークンを発行する。
// 最終ログイン日時はAuthenticate内で記録済みのため発行時には更新しない。
func (e *Engine) LoginWithPassword(ctx context.Context, email, password string) Outcome {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return e.finish(MethodPassword, failed(fail(KindMissingCredentials, nil)))
	}

	account, err := e.resolver.Authenticate(ctx, email, password)
	if err != nil {
		return e.finish(MethodPassword, failed(AsFailure(err)))
	}
	return e.finish(MethodPassword, e.issue(account))
}

// AuthorizationURL はブラウザを誘導するIdPの認可URLを返す。
// このフローはURLを返した時点で終了し、以降はIdPからのコールバックで再開する。
func (e *Engine) AuthorizationURL(ctx context.Context) (string, *Failure) {
	u, err := e.idp.AuthorizationURL(ctx, e.config.Scopes, e.config.RedirectURI)
	if err != nil {
		slog.Error("failed to build authorization URL", slog.String("error", err.Error()))
		return "", fail(KindIdPUnavailable, err)
	}
	return u, nil
}

// HandleCallback はIdPから受け取った認可コードを交換し、
// ドメイン確認・アカウント解決を経てセッショントークンを発行する。
func (e *Engine) HandleCallback(ctx context.Context, code string) Outcome {
	code = strings.TrimSpace(code)
	if code == "" {
		return e.finish(MethodIdP, failed(fail(KindMissingCode, nil)))
	}

	// Exchanging
	start := time.Now()
	claims, err := e.idp.ExchangeCode(ctx, code, e.config.RedirectURI, e.config.Scopes)
	if e.recorder != nil {
		e.recorder.ObserveIdPExchange(time.Since(start))
	}
	switch {
	case errors.Is(err, ErrMissingEmailClaim):
		return e.finish(MethodIdP, failed(fail(KindMissingEmail, err)))
	case errors.Is(err, ErrProviderUnavailable):
		return e.finish(MethodIdP, failed(fail(KindIdPUnavailable, err)))
	case err != nil:
		return e.finish(MethodIdP, failed(fail(KindAuthFailed, err)))
	}
	if claims.Email == "" {
		return e.finish(MethodIdP, failed(fail(KindMissingEmail, nil)))
	}
	claims = e.sanitize(claims)

	// DomainChecking
	allowed, err := e.gate.IsAuthorized(ctx, claims.Email)
	if err != nil {
		return e.finish(MethodIdP, failed(fail(KindStorage, err)))
	}
	if !allowed {
		return e.finish(MethodIdP, failed(&Failure{Kind: KindDomainNotAllowed, Email: claims.Email}))
	}

	// Resolving
	account, err := e.resolver.Reconcile(ctx, claims)
	if err != nil {
		return e.finish(MethodIdP, failed(AsFailure(err)))
	}
	if !account.IsActive {
		return e.finish(MethodIdP, failed(&Failure{Kind: KindAccountInactive, Email: account.Email}))
	}

	// Issuing
	account, err = e.resolver.RecordLogin(ctx, account)
	if err != nil {
		return e.finish(MethodIdP, failed(AsFailure(err)))
	}
	return e.finish(MethodIdP, e.issue(account))
}

// CheckDomain はメールアドレスがログイン可能なドメインかを事前確認する。
func (e *Engine) CheckDomain(ctx context.Context, email string) (*DomainCheck, error) {
	email = model.NormalizeEmail(email)
	allowed, err := e.gate.IsAuthorized(ctx, email)
	if err != nil {
		return nil, err
	}

	active, err := e.domains.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(active))
	for _, d := range active {
		names = append(names, d.DomainName)
	}

	return &DomainCheck{Email: email, IsAllowed: allowed, AllowedDomains: names}, nil
}

// issue はセッショントークンを発行し、公開用のアカウント情報と合わせて返す。
func (e *Engine) issue(account *model.Account) Outcome {
	token, err := e.tokens.Issue(account)
	if err != nil {
		return failed(fail(KindStorage, err))
	}
	safe := account.Safe()
	return Outcome{Token: token, Account: &safe}
}

func (e *Engine) sanitize(c *IdentityClaims) *IdentityClaims {
	if e.sanitizer == nil {
		return c
	}
	return &IdentityClaims{
		Email:       c.Email,
		ExternalID:  c.ExternalID,
		GivenName:   e.sanitizer.SanitizeName(c.GivenName),
		FamilyName:  e.sanitizer.SanitizeName(c.FamilyName),
		DisplayName: e.sanitizer.SanitizeName(c.DisplayName),
		AvatarURL:   e.sanitizer.SanitizeAvatarURL(c.AvatarURL),
	}
}

// finish は結果をログとメトリクスに記録してそのまま返す。
func (e *Engine) finish(method string, o Outcome) Outcome {
	label := "success"
	if o.Failure != nil {
		label = string(o.Failure.Kind)
		attrs := []any{
			slog.String("method", method),
			slog.String("kind", label),
		}
		if o.Failure.Email != "" {
			attrs = append(attrs, slog.String("email", o.Failure.Email))
		}
		if o.Failure.Err != nil {
			attrs = append(attrs, slog.String("error", o.Failure.Err.Error()))
		}
		switch o.Failure.Kind {
		case KindStorage, KindIdPUnavailable:
			slog.Error("login failed", attrs...)
		default:
			slog.Warn("login failed", attrs...)
		}
	} else {
		slog.Info("login succeeded",
			slog.String("method", method),
			slog.String("account_id", o.Account.ID),
		)
	}

	if e.recorder != nil {
		e.recorder.RecordLogin(method, label)
	}
	return o
}
