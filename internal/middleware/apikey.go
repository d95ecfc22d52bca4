package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/idgate/internal/model"
)

// APIKeyHeader はサービス用APIキーを受け取るヘッダー名。
const APIKeyHeader = "X-API-Key"

// NewAPIKeyMiddleware はX-API-Keyヘッダーが許可リストのいずれかと完全一致することを要求する。
// 一致しない場合は401を返し、後続の処理は行わない。
func NewAPIKeyMiddleware(keys []string) func(next http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)
			if presented == "" || !matchesAny(allowed, []byte(presented)) {
				slog.Warn("api key rejected",
					slog.String("path", r.URL.Path),
					slog.Bool("present", presented != ""),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidAPIKeyError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// matchesAny は全候補を定数時間で比較する。一致した時点で打ち切らない。
func matchesAny(allowed [][]byte, presented []byte) bool {
	match := 0
	for _, k := range allowed {
		match |= subtle.ConstantTimeCompare(k, presented)
	}
	return match == 1
}
