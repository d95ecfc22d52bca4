package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/hitoshi/idgate/internal/auth"
	"github.com/hitoshi/idgate/internal/model"
)

// --- モック定義 ---

type mockTokenVerifier struct {
	verifyFn func(token string) (*auth.Claims, error)
}

func (m *mockTokenVerifier) Verify(token string) (*auth.Claims, error) {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return nil, auth.ErrInvalidToken
}

type mockAccountFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Account, error)
}

func (m *mockAccountFinder) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockRejectionRecorder struct {
	reasons []string
}

func (m *mockRejectionRecorder) RecordTokenRejected(reason string) {
	m.reasons = append(m.reasons, reason)
}

// withAccount は認証済みアカウントを注入したリクエストを返す。
func withAccount(r *http.Request, account *model.Account) *http.Request {
	return r.WithContext(ContextWithAccount(r.Context(), account))
}

func newAccountRequest(method, accountID string) *http.Request {
	req := httptest.NewRequest(method, "/api/test", nil)
	return withAccount(req, &model.Account{ID: accountID, Role: model.RoleUser, IsActive: true})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// newRealTokenCodec はテスト用の実トークンコーデックを返す。
func newRealTokenCodec(ttl time.Duration) *auth.TokenCodec {
	codec, err := auth.NewTokenCodec("middleware-test-secret", ttl)
	if err != nil {
		panic(err)
	}
	return codec
}

var _ TokenVerifier = (*mockTokenVerifier)(nil)
var _ AccountFinder = (*mockAccountFinder)(nil)
var _ RejectionRecorder = (*mockRejectionRecorder)(nil)
