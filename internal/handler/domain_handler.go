package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/idgate/internal/allowlist"
	"github.com/hitoshi/idgate/internal/middleware"
	"github.com/hitoshi/idgate/internal/model"
)

// DomainServiceInterface は許可ドメインハンドラーが必要とするサービスインターフェース。
type DomainServiceInterface interface {
	List(ctx context.Context) ([]*model.AllowedDomain, error)
	Get(ctx context.Context, id string) (*model.AllowedDomain, error)
	Create(ctx context.Context, in allowlist.CreateInput) (*model.AllowedDomain, error)
	Update(ctx context.Context, id string, patch model.DomainPatch) (*model.AllowedDomain, error)
	Toggle(ctx context.Context, id string) (*model.AllowedDomain, error)
	Delete(ctx context.Context, id string) error
}

var _ DomainServiceInterface = (*allowlist.Service)(nil)

// DomainHandler は許可ドメイン管理のHTTPハンドラー。
type DomainHandler struct {
	service DomainServiceInterface
}

// NewDomainHandler はDomainHandlerを生成する。
func NewDomainHandler(service DomainServiceInterface) *DomainHandler {
	return &DomainHandler{service: service}
}

type domainRequest struct {
	DomainName  *string `json:"domain_name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type domainResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Domain  *model.AllowedDomain `json:"domain"`
}

type domainListResponse struct {
	Success bool                   `json:"success"`
	Domains []*model.AllowedDomain `json:"domains"`
}

// List は全ての許可ドメインを返す。
// GET /api/domains
func (h *DomainHandler) List(w http.ResponseWriter, r *http.Request) {
	domains, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if domains == nil {
		domains = []*model.AllowedDomain{}
	}
	middleware.WriteJSON(w, http.StatusOK, domainListResponse{Success: true, Domains: domains})
}

// Get は許可ドメインを1件返す。
// GET /api/domains/{id}
func (h *DomainHandler) Get(w http.ResponseWriter, r *http.Request) {
	domain, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, domainResponse{Success: true, Domain: domain})
}

// Create は許可ドメインを登録する。
// POST /api/domains
func (h *DomainHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	in := allowlist.CreateInput{IsActive: req.IsActive}
	if req.DomainName != nil {
		in.DomainName = *req.DomainName
	}
	if req.Description != nil {
		in.Description = *req.Description
	}

	domain, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, domainResponse{Success: true, Message: "ドメインを登録しました。", Domain: domain})
}

// Update は許可ドメインを部分更新する。
// PUT /api/domains/{id}
func (h *DomainHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	domain, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), model.DomainPatch{
		DomainName:  req.DomainName,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, domainResponse{Success: true, Message: "ドメインを更新しました。", Domain: domain})
}

// Toggle は許可ドメインの有効/無効を切り替える。
// PATCH /api/domains/{id}/toggle
func (h *DomainHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	domain, err := h.service.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, domainResponse{Success: true, Domain: domain})
}

// Delete は許可ドメインを削除する。
// DELETE /api/domains/{id}
func (h *DomainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "ドメインを削除しました。"})
}
