package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/idgate/internal/allowlist"
	"github.com/hitoshi/idgate/internal/auth"
	"github.com/hitoshi/idgate/internal/middleware"
	"github.com/hitoshi/idgate/internal/model"
)

// --- モック定義 ---

type mockAuthEngine struct {
	loginFn          func(ctx context.Context, email, password string) auth.Outcome
	authorizationFn  func(ctx context.Context) (string, *auth.Failure)
	handleCallbackFn func(ctx context.Context, code string) auth.Outcome
	checkDomainFn    func(ctx context.Context, email string) (*auth.DomainCheck, error)
}

func (m *mockAuthEngine) LoginWithPassword(ctx context.Context, email, password string) auth.Outcome {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return auth.Outcome{Failure: &auth.Failure{Kind: auth.KindBadCredentials}}
}

func (m *mockAuthEngine) AuthorizationURL(ctx context.Context) (string, *auth.Failure) {
	if m.authorizationFn != nil {
		return m.authorizationFn(ctx)
	}
	return "", &auth.Failure{Kind: auth.KindIdPUnavailable}
}

func (m *mockAuthEngine) HandleCallback(ctx context.Context, code string) auth.Outcome {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return auth.Outcome{Failure: &auth.Failure{Kind: auth.KindAuthFailed}}
}

func (m *mockAuthEngine) CheckDomain(ctx context.Context, email string) (*auth.DomainCheck, error) {
	if m.checkDomainFn != nil {
		return m.checkDomainFn(ctx, email)
	}
	return &auth.DomainCheck{Email: email}, nil
}

type mockUserService struct {
	listFn         func(ctx context.Context, q model.AccountQuery) (*model.AccountPage, error)
	getFn          func(ctx context.Context, id string) (*model.Account, error)
	toggleStatusFn func(ctx context.Context, actorID, id string) (*model.Account, error)
	updateRoleFn   func(ctx context.Context, actorID, id, role string) (*model.Account, error)
}

func (m *mockUserService) List(ctx context.Context, q model.AccountQuery) (*model.AccountPage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &model.AccountPage{}, nil
}

func (m *mockUserService) Get(ctx context.Context, id string) (*model.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) ToggleStatus(ctx context.Context, actorID, id string) (*model.Account, error) {
	if m.toggleStatusFn != nil {
		return m.toggleStatusFn(ctx, actorID, id)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) UpdateRole(ctx context.Context, actorID, id, role string) (*model.Account, error) {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, actorID, id, role)
	}
	return nil, model.NewUserNotFoundError()
}

type mockDomainService struct {
	listFn   func(ctx context.Context) ([]*model.AllowedDomain, error)
	getFn    func(ctx context.Context, id string) (*model.AllowedDomain, error)
	createFn func(ctx context.Context, in allowlist.CreateInput) (*model.AllowedDomain, error)
	updateFn func(ctx context.Context, id string, patch model.DomainPatch) (*model.AllowedDomain, error)
	toggleFn func(ctx context.Context, id string) (*model.AllowedDomain, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockDomainService) List(ctx context.Context) ([]*model.AllowedDomain, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockDomainService) Get(ctx context.Context, id string) (*model.AllowedDomain, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewDomainNotFoundError()
}

func (m *mockDomainService) Create(ctx context.Context, in allowlist.CreateInput) (*model.AllowedDomain, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.AllowedDomain{ID: "d-new", DomainName: in.DomainName, IsActive: true}, nil
}

func (m *mockDomainService) Update(ctx context.Context, id string, patch model.DomainPatch) (*model.AllowedDomain, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, patch)
	}
	return nil, model.NewDomainNotFoundError()
}

func (m *mockDomainService) Toggle(ctx context.Context, id string) (*model.AllowedDomain, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, id)
	}
	return nil, model.NewDomainNotFoundError()
}

func (m *mockDomainService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// --- ヘルパー ---

// withAccount は認証済みアカウントを注入したリクエストを返す。
func withAccount(r *http.Request, account *model.Account) *http.Request {
	return r.WithContext(middleware.ContextWithAccount(r.Context(), account))
}

// decodeBody はレスポンスボディをJSONとして読み込む。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func successOutcome(account *model.Account) auth.Outcome {
	safe := account.Safe()
	return auth.Outcome{Token: "signed-token", Account: &safe}
}

// withURLParam はchiのURLパラメータを設定したリクエストを返す。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
