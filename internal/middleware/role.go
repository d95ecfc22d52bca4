package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/idgate/internal/model"
)

// RequireAdmin は管理者フラグまたはadminロールを持つアカウントのみを通過させる。
// Bearerミドルウェアの後に配置する。それ以外のアカウントには403を返す。
func RequireAdmin() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := AccountFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !account.IsAdministrator() {
				slog.Warn("admin route denied",
					slog.String("account_id", account.ID),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
