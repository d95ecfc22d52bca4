package handler

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/idgate/internal/auth"
	"github.com/hitoshi/idgate/internal/middleware"
	"github.com/hitoshi/idgate/internal/model"
)

// AuthEngine は認証ハンドラーが必要とする認証フローのインターフェース。
// auth.Engineが実装する。
type AuthEngine interface {
	LoginWithPassword(ctx context.Context, email, password string) auth.Outcome
	AuthorizationURL(ctx context.Context) (string, *auth.Failure)
	HandleCallback(ctx context.Context, code string) auth.Outcome
	CheckDomain(ctx context.Context, email string) (*auth.DomainCheck, error)
}

var _ AuthEngine = (*auth.Engine)(nil)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// FrontendURL はGETコールバックの結果を返すフロントエンドのベースURL。
	FrontendURL string
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	engine   AuthEngine
	redirect *RedirectChannel
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(engine AuthEngine, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		engine:   engine,
		redirect: NewRedirectChannel(config.FrontendURL),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type callbackRequest struct {
	Code string `json:"code"`
}

type checkDomainRequest struct {
	Email string `json:"email"`
}

type idpLoginResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirectUrl"`
}

type meResponse struct {
	Success bool              `json:"success"`
	User    model.SafeAccount `json:"user"`
}

type checkDomainResponse struct {
	Success bool `json:"success"`
	*auth.DomainCheck
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	outcome := h.engine.LoginWithPassword(r.Context(), req.Email, req.Password)
	render(w, r, NewJSONChannel(auth.MethodPassword), outcome)
}

// IdPLogin はIdPの認可URLを返す。ブラウザの誘導はクライアントが行う。
// GET /auth/idp/login
func (h *AuthHandler) IdPLogin(w http.ResponseWriter, r *http.Request) {
	redirectURL, f := h.engine.AuthorizationURL(r.Context())
	if f != nil {
		NewJSONChannel(auth.MethodIdP).Failure(w, r, f)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, idpLoginResponse{Success: true, RedirectURL: redirectURL})
}

// Callback はIdPからのコールバックを処理する。
// GETはブラウザからのアクセスとしてフロントエンドへリダイレクトし、
// POSTはJSONで結果を返す。
// GET|POST /auth/idp/callback
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var ch ResponseChannel = h.redirect
	if r.Method == http.MethodPost {
		ch = NewJSONChannel(auth.MethodIdP)
	}

	code, ok := callbackCode(w, r)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	render(w, r, ch, h.engine.HandleCallback(r.Context(), code))
}

// callbackCode は認可コードをクエリ、JSONボディ、フォームボディの順に探す。
// ボディの形式が不正な場合はfalseを返す。
func callbackCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	if code := r.URL.Query().Get("code"); code != "" {
		return code, true
	}
	if r.Method != http.MethodPost {
		return "", true
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		// response_mode=form_post
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return "", false
		}
		return r.PostForm.Get("code"), true
	default:
		if r.ContentLength == 0 {
			return "", true
		}
		var req callbackRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return "", false
		}
		return req.Code, true
	}
}

// Me は認証済みアカウントの公開情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, err := middleware.AccountFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, meResponse{Success: true, User: account.Safe()})
}

// CheckDomain はメールアドレスのドメインがログイン可能かを返す。
// POST /auth/check-domain
func (h *AuthHandler) CheckDomain(w http.ResponseWriter, r *http.Request) {
	var req checkDomainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidParameterError("email"))
		return
	}

	result, err := h.engine.CheckDomain(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, checkDomainResponse{Success: true, DomainCheck: result})
}
