// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/idgate/internal/middleware"
	"github.com/hitoshi/idgate/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

// successResponse は本文を持たない成功レスポンス。
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// decodeJSON はリクエストボディをvに読み込む。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeAPIErrorResponse は統一フォーマットでエラーを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserNotFound, model.ErrCodeDomainNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRole, model.ErrCodeInvalidDomain,
		model.ErrCodeInvalidParameter, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeSelfModification, model.ErrCodeBootstrapAdminProtected,
		model.ErrCodePrimaryDomainProtected, model.ErrCodeForbidden, model.ErrCodeAccountInactive:
		return http.StatusForbidden
	case model.ErrCodeDuplicateDomain:
		return http.StatusConflict
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidToken, model.ErrCodeInvalidAPIKey:
		return http.StatusUnauthorized
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
