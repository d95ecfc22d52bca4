package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/idgate/internal/model"
	"github.com/hitoshi/idgate/internal/repository"
)

// --- モック定義 ---

// fakeAccountRepo はメモリ上でアカウントを保持するリポジトリ。
// xxxFnが設定されている場合はそちらを優先する。
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	findByEmailFn      func(ctx context.Context, email string) (*model.Account, error)
	findByExternalIDFn func(ctx context.Context, externalID string) (*model.Account, error)
	createFn           func(ctx context.Context, account *model.Account) (*model.Account, error)
	updateFn           func(ctx context.Context, id string, patch model.AccountPatch) (*model.Account, error)

	createCalls int
}

func newFakeAccountRepo(accounts ...*model.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: map[string]*model.Account{}}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) get(id string) *model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id]
}

func (r *fakeAccountRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

func clone(a *model.Account) *model.Account {
	c := *a
	return &c
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return clone(a), nil
	}
	return nil, nil
}

func (r *fakeAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if r.findByEmailFn != nil {
		return r.findByEmailFn(ctx, email)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	if r.findByExternalIDFn != nil {
		return r.findByExternalIDFn(ctx, externalID)
	}
	if externalID == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ExternalID == externalID {
			return clone(a), nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *model.Account) (*model.Account, error) {
	r.mu.Lock()
	r.createCalls++
	r.mu.Unlock()
	if r.createFn != nil {
		return r.createFn(ctx, account)
	}
	return r.insert(account)
}

func (r *fakeAccountRepo) insert(account *model.Account) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, account.Email) ||
			(account.ExternalID != "" && a.ExternalID == account.ExternalID) {
			return nil, fmt.Errorf("failed to create account: %w", repository.ErrDuplicate)
		}
	}
	c := clone(account)
	c.IsAdmin = c.Role == model.RoleAdmin
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.accounts[c.ID] = c
	return clone(c), nil
}

func (r *fakeAccountRepo) Update(ctx context.Context, id string, patch model.AccountPatch) (*model.Account, error) {
	if r.updateFn != nil {
		return r.updateFn(ctx, id, patch)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.Email, patch.Email)
	set(&a.PasswordHash, patch.PasswordHash)
	set(&a.ExternalID, patch.ExternalID)
	set(&a.FirstName, patch.FirstName)
	set(&a.LastName, patch.LastName)
	set(&a.DisplayName, patch.DisplayName)
	set(&a.AvatarURL, patch.AvatarURL)
	if patch.Role != nil {
		a.Role = *patch.Role
	}
	if patch.IsAdmin != nil {
		a.IsAdmin = *patch.IsAdmin
	}
	if patch.IsActive != nil {
		a.IsActive = *patch.IsActive
	}
	a.UpdatedAt = time.Now()
	return clone(a), nil
}

func (r *fakeAccountRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	if a.LastLoginAt == nil || at.After(*a.LastLoginAt) {
		t := at
		a.LastLoginAt = &t
	}
	return clone(a), nil
}

func (r *fakeAccountRepo) List(_ context.Context, _ model.AccountQuery) (*model.AccountPage, error) {
	return &model.AccountPage{}, nil
}

type mockDomainRepo struct {
	isActiveDomainFn func(ctx context.Context, name string) (bool, error)
	listActiveFn     func(ctx context.Context) ([]*model.AllowedDomain, error)
	checked          []string
}

func (m *mockDomainRepo) FindByID(context.Context, string) (*model.AllowedDomain, error) {
	return nil, nil
}

func (m *mockDomainRepo) FindByName(context.Context, string) (*model.AllowedDomain, error) {
	return nil, nil
}

func (m *mockDomainRepo) IsActiveDomain(ctx context.Context, name string) (bool, error) {
	m.checked = append(m.checked, name)
	if m.isActiveDomainFn != nil {
		return m.isActiveDomainFn(ctx, name)
	}
	return false, nil
}

func (m *mockDomainRepo) ListActive(ctx context.Context) ([]*model.AllowedDomain, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx)
	}
	return nil, nil
}

func (m *mockDomainRepo) ListAll(context.Context) ([]*model.AllowedDomain, error) {
	return nil, nil
}

func (m *mockDomainRepo) Create(context.Context, *model.AllowedDomain) (*model.AllowedDomain, error) {
	return nil, nil
}

func (m *mockDomainRepo) Update(context.Context, string, model.DomainPatch) (*model.AllowedDomain, error) {
	return nil, nil
}

func (m *mockDomainRepo) Delete(context.Context, string) (bool, error) {
	return false, nil
}

// allowDomains は指定ドメインのみを有効とするmockDomainRepoを返す。
func allowDomains(names ...string) *mockDomainRepo {
	return &mockDomainRepo{
		isActiveDomainFn: func(_ context.Context, name string) (bool, error) {
			for _, n := range names {
				if n == name {
					return true, nil
				}
			}
			return false, nil
		},
		listActiveFn: func(context.Context) ([]*model.AllowedDomain, error) {
			out := make([]*model.AllowedDomain, 0, len(names))
			for _, n := range names {
				out = append(out, &model.AllowedDomain{DomainName: n, IsActive: true})
			}
			return out, nil
		},
	}
}

type mockIdP struct {
	authorizationURLFn func(ctx context.Context, scopes []string, redirectURI string) (string, error)
	exchangeCodeFn     func(ctx context.Context, code, redirectURI string, scopes []string) (*IdentityClaims, error)
}

func (m *mockIdP) AuthorizationURL(ctx context.Context, scopes []string, redirectURI string) (string, error) {
	if m.authorizationURLFn != nil {
		return m.authorizationURLFn(ctx, scopes, redirectURI)
	}
	return "", nil
}

func (m *mockIdP) ExchangeCode(ctx context.Context, code, redirectURI string, scopes []string) (*IdentityClaims, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code, redirectURI, scopes)
	}
	return nil, nil
}

// exchangesTo は常に同じクレームを返すmockIdPを生成する。
func exchangesTo(claims IdentityClaims) *mockIdP {
	return &mockIdP{
		exchangeCodeFn: func(context.Context, string, string, []string) (*IdentityClaims, error) {
			c := claims
			return &c, nil
		},
	}
}

type mockRecorder struct {
	logins    []string
	exchanges int
}

func (m *mockRecorder) RecordLogin(method, outcome string) {
	m.logins = append(m.logins, method+":"+outcome)
}

func (m *mockRecorder) ObserveIdPExchange(time.Duration) {
	m.exchanges++
}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*fakeAccountRepo)(nil)
var _ repository.DomainRepository = (*mockDomainRepo)(nil)
var _ IdentityProvider = (*mockIdP)(nil)
var _ Recorder = (*mockRecorder)(nil)
