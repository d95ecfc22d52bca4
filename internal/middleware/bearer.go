package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/idgate/internal/auth"
	"github.com/hitoshi/idgate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// accountContextKey はリクエストコンテキストに認証済みアカウントを格納するためのキー。
var accountContextKey = contextKey("account")

// トークン拒否理由。メトリクスのラベルとして使用する。
const (
	RejectMissing  = "missing"
	RejectInvalid  = "invalid"
	RejectExpired  = "expired"
	RejectNotFound = "not_found"
	RejectInactive = "inactive"
)

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AccountFinder はアカウントの再読込に必要なインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// RejectionRecorder はトークン拒否の理由を記録する。metrics.Collectorが実装する。
type RejectionRecorder interface {
	RecordTokenRejected(reason string)
}

// NewBearerMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 発行後のロール変更や無効化を反映するためアカウントをIDで再読込する。
// トークン無し・不正・期限切れは401、アカウント無しは404、無効化済みは401を返す。
// 成功時は認証済みアカウントをリクエストコンテキストに注入する。
func NewBearerMiddleware(verifier TokenVerifier, accounts AccountFinder, recorder RejectionRecorder) func(next http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, status int, reason string, apiErr *model.APIError) {
		if recorder != nil {
			recorder.RecordTokenRejected(reason)
		}
		WriteErrorResponse(w, status, apiErr)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. ヘッダーからトークンを取得
			token, ok := bearerToken(r)
			if !ok {
				reject(w, http.StatusUnauthorized, RejectMissing, model.NewUnauthorizedError())
				return
			}

			// 2. 署名と有効期限を検証
			claims, err := verifier.Verify(token)
			if err != nil {
				reason := RejectInvalid
				if auth.IsExpired(err) {
					reason = RejectExpired
				}
				slog.Debug("session token rejected",
					slog.String("reason", reason),
					slog.String("error", err.Error()),
				)
				reject(w, http.StatusUnauthorized, reason, model.NewInvalidTokenError())
				return
			}

			// 3. アカウントを再読込
			account, err := accounts.FindByID(r.Context(), claims.AccountID)
			if err != nil {
				slog.Error("failed to load account for token",
					slog.String("account_id", claims.AccountID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if account == nil {
				reject(w, http.StatusNotFound, RejectNotFound, model.NewUserNotFoundError())
				return
			}
			if !account.IsActive {
				reject(w, http.StatusUnauthorized, RejectInactive, model.NewAccountInactiveError())
				return
			}

			// 4. 認証済みアカウントをコンテキストに注入
			noteAccount(r.Context(), account.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), account)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AccountFromContext はリクエストコンテキストから認証済みアカウントを取得する。
// Bearerミドルウェアを通過したリクエストでのみ有効。
func AccountFromContext(ctx context.Context) (*model.Account, error) {
	account, ok := ctx.Value(accountContextKey).(*model.Account)
	if !ok || account == nil {
		return nil, errors.New("account not found in context")
	}
	return account, nil
}

// AccountIDFromContext は認証済みアカウントのIDを返す。未認証の場合は空文字列。
func AccountIDFromContext(ctx context.Context) string {
	account, err := AccountFromContext(ctx)
	if err != nil {
		return ""
	}
	return account.ID
}

// ContextWithAccount はコンテキストにアカウントを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}
