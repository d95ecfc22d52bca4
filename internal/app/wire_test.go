package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/idgate/internal/auth"
	"github.com/hitoshi/idgate/internal/config"
)

func newTestConfig() *config.Config {
	return &config.Config{
		AppEnv:              config.EnvTest,
		JWTSecret:           "test-jwt-secret-32bytes-long!!!!",
		TokenTTL:            time.Hour,
		APIKeys:             []string{"service-key"},
		IdPMode:             config.IdPModeOIDC,
		IdPClientID:         "client",
		IdPClientSecret:     "secret",
		IdPRedirectURL:      "http://localhost:8080/auth/idp/callback",
		IdPIssuerURL:        "https://login.example.com",
		IdPScopes:           []string{"openid", "email"},
		FrontendURL:         "http://localhost:3000",
		BootstrapAdminEmail: "admin@example.com",
		PrimaryDomain:       "example.com",
		RateLimitGeneral:    100,
		RateLimitAdminWrite: 10,
		CORSAllowedOrigin:   "*",
	}
}

func TestWire_RouterServesOperationalEndpoints(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()

	reg := prometheus.NewRegistry()
	c, err := wire(newTestConfig(), db, reg)
	if err != nil {
		t.Fatalf("wire failed: %v", err)
	}
	defer c.limiter.Stop()

	t.Run("ヘルスチェックはDBへのpingを行う", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("ping was not issued: %v", err)
		}
	})

	t.Run("メトリクスが公開される", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "idgate_idp_exchange_seconds") {
			t.Error("expected idgate metrics in exposition")
		}
	})

	t.Run("APIキーなしのログインは拒否される", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
		c.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("トークンなしの/meは拒否される", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("X-API-Key", "service-key")
		c.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestWire_RejectsEmptySecret(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	cfg := newTestConfig()
	cfg.JWTSecret = ""
	if _, err := wire(cfg, db, prometheus.NewRegistry()); err == nil {
		t.Fatal("expected error for empty signing secret")
	}
}

func TestNewIdentityProvider_SelectsByMode(t *testing.T) {
	cfg := newTestConfig()
	if _, ok := newIdentityProvider(cfg).(*auth.OIDCProvider); !ok {
		t.Error("oidc mode should build an OIDC provider")
	}

	cfg.IdPMode = config.IdPModeOAuth2
	cfg.IdPAuthURL = "https://idp.example.com/authorize"
	cfg.IdPTokenURL = "https://idp.example.com/token"
	cfg.IdPUserInfoURL = "https://idp.example.com/userinfo"
	if _, ok := newIdentityProvider(cfg).(*auth.OAuth2Provider); !ok {
		t.Error("oauth2 mode should build an OAuth2 provider")
	}
}

type stubAdminSeeder struct {
	password string
	err      error
}

func (s *stubAdminSeeder) SeedBootstrapAdmin(_ context.Context, password string) (bool, error) {
	s.password = password
	return s.err == nil, s.err
}

type stubDomainSeeder struct {
	names []string
	err   error
}

func (s *stubDomainSeeder) SeedDefaults(_ context.Context, names []string) (int, error) {
	s.names = names
	return len(names), s.err
}

func TestSeed(t *testing.T) {
	cfg := newTestConfig()
	cfg.BootstrapAdminPassword = "initial-pass"
	cfg.DefaultAllowedDomains = []string{"partner.example.org"}

	t.Run("初期管理者と主ドメインを含む既定ドメインを投入する", func(t *testing.T) {
		admins := &stubAdminSeeder{}
		domains := &stubDomainSeeder{}
		if err := seed(context.Background(), cfg, admins, domains); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if admins.password != "initial-pass" {
			t.Errorf("password = %q", admins.password)
		}
		if len(domains.names) != 2 || domains.names[0] != "example.com" || domains.names[1] != "partner.example.org" {
			t.Errorf("seeded domains = %v", domains.names)
		}
	})

	t.Run("管理者の投入に失敗した場合はドメインを投入しない", func(t *testing.T) {
		admins := &stubAdminSeeder{err: errors.New("no password")}
		domains := &stubDomainSeeder{}
		if err := seed(context.Background(), cfg, admins, domains); err == nil {
			t.Fatal("expected error")
		}
		if domains.names != nil {
			t.Error("domains should not be seeded after admin failure")
		}
	})

	t.Run("ドメイン投入のエラーを返す", func(t *testing.T) {
		domains := &stubDomainSeeder{err: errors.New("db down")}
		if err := seed(context.Background(), cfg, &stubAdminSeeder{}, domains); err == nil {
			t.Fatal("expected error")
		}
	})
}
