package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/idgate/internal/middleware"
	"github.com/hitoshi/idgate/internal/model"
	"github.com/hitoshi/idgate/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context, q model.AccountQuery) (*model.AccountPage, error)
	Get(ctx context.Context, id string) (*model.Account, error)
	// ToggleStatus は有効/無効を反転する。actorIDは操作者のアカウントID。
	ToggleStatus(ctx context.Context, actorID, id string) (*model.Account, error)
	UpdateRole(ctx context.Context, actorID, id, role string) (*model.Account, error)
}

var _ UserServiceInterface = (*user.Service)(nil)

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type userResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	User    model.SafeAccount `json:"user"`
}

type userListResponse struct {
	Success    bool                `json:"success"`
	Users      []model.SafeAccount `json:"users"`
	Pagination model.Pagination    `json:"pagination"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// List はアカウント一覧を返す。
// GET /api/users?page=&limit=&keyword=&domain=&role=&status=&sortBy=&sortOrder=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseAccountQuery(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	page, err := h.service.List(r.Context(), q)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	users := make([]model.SafeAccount, 0, len(page.Accounts))
	for _, a := range page.Accounts {
		users = append(users, a.Safe())
	}
	middleware.WriteJSON(w, http.StatusOK, userListResponse{
		Success:    true,
		Users:      users,
		Pagination: page.Pagination,
	})
}

// parseAccountQuery はクエリ文字列を検索条件に変換する。
// 範囲の丸めとソートカラムの許可リスト判定はサービス層で行う。
func parseAccountQuery(r *http.Request) (model.AccountQuery, *model.APIError) {
	v := r.URL.Query()
	q := model.AccountQuery{
		Keyword:   v.Get("keyword"),
		Domain:    v.Get("domain"),
		SortBy:    v.Get("sortBy"),
		SortOrder: v.Get("sortOrder"),
	}

	if s := v.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, model.NewInvalidParameterError("page")
		}
		q.Page = n
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, model.NewInvalidParameterError("limit")
		}
		q.Limit = n
	}
	if s := v.Get("role"); s != "" {
		role, ok := model.ParseRole(s)
		if !ok {
			return q, model.NewInvalidRoleError(s)
		}
		q.Role = role
	}
	switch v.Get("status") {
	case "":
	case "active":
		active := true
		q.IsActive = &active
	case "inactive":
		active := false
		q.IsActive = &active
	default:
		return q, model.NewInvalidParameterError("status")
	}

	return q, nil
}

// Get はアカウントを1件返す。
// GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: account.Safe()})
}

// ToggleStatus はアカウントの有効/無効を切り替える。
// PATCH /api/users/{id}/toggle
func (h *UserHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.AccountIDFromContext(r.Context())

	account, err := h.service.ToggleStatus(r.Context(), actorID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	message := "アカウントを無効化しました。"
	if account.IsActive {
		message = "アカウントを有効化しました。"
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{Success: true, Message: message, User: account.Safe()})
}

// UpdateRole はアカウントのロールを変更する。
// PATCH /api/users/{id}/role
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	actorID := middleware.AccountIDFromContext(r.Context())

	account, err := h.service.UpdateRole(r.Context(), actorID, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{Success: true, Message: "ロールを変更しました。", User: account.Safe()})
}
