package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 実行環境
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// IdPの接続方式
const (
	IdPModeOIDC   = "oidc"
	IdPModeOAuth2 = "oauth2"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv          string
	SkipDomainCheck bool

	// Database
	DatabaseURL       string
	AutoMigrate       bool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Token
	JWTSecret string
	TokenTTL  time.Duration

	// Service credential
	APIKeys []string

	// IdP
	IdPMode            string
	IdPClientID        string
	IdPClientSecret    string
	IdPRedirectURL     string
	IdPIssuerURL       string
	IdPAuthURL         string
	IdPTokenURL        string
	IdPUserInfoURL     string
	IdPScopes          []string
	IdPSkipIssuerCheck bool

	// Frontend
	FrontendURL string

	// Bootstrap
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	DefaultAllowedDomains  []string
	PrimaryDomain          string

	// Rate Limit（1アカウントあたり毎分のリクエスト数）
	RateLimitGeneral    int
	RateLimitAdminWrite int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や、本番環境で危険な設定が有効な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.APIKeys = getEnvList("API_KEYS")
	if len(cfg.APIKeys) == 0 {
		missing = append(missing, "API_KEYS")
	}

	cfg.IdPClientID = os.Getenv("IDP_CLIENT_ID")
	if cfg.IdPClientID == "" {
		missing = append(missing, "IDP_CLIENT_ID")
	}

	cfg.IdPClientSecret = os.Getenv("IDP_CLIENT_SECRET")
	if cfg.IdPClientSecret == "" {
		missing = append(missing, "IDP_CLIENT_SECRET")
	}

	cfg.IdPRedirectURL = os.Getenv("IDP_REDIRECT_URL")
	if cfg.IdPRedirectURL == "" {
		missing = append(missing, "IDP_REDIRECT_URL")
	}

	cfg.FrontendURL = strings.TrimRight(os.Getenv("FRONTEND_URL"), "/")
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}

	cfg.IdPMode = strings.ToLower(getEnvString("IDP_MODE", IdPModeOIDC))
	switch cfg.IdPMode {
	case IdPModeOIDC:
		cfg.IdPIssuerURL = os.Getenv("IDP_ISSUER_URL")
		if cfg.IdPIssuerURL == "" {
			missing = append(missing, "IDP_ISSUER_URL")
		}
	case IdPModeOAuth2:
		cfg.IdPAuthURL = os.Getenv("IDP_AUTH_URL")
		if cfg.IdPAuthURL == "" {
			missing = append(missing, "IDP_AUTH_URL")
		}
		cfg.IdPTokenURL = os.Getenv("IDP_TOKEN_URL")
		if cfg.IdPTokenURL == "" {
			missing = append(missing, "IDP_TOKEN_URL")
		}
		cfg.IdPUserInfoURL = os.Getenv("IDP_USERINFO_URL")
		if cfg.IdPUserInfoURL == "" {
			missing = append(missing, "IDP_USERINFO_URL")
		}
	default:
		return nil, fmt.Errorf("invalid IDP_MODE %q: must be %q or %q", cfg.IdPMode, IdPModeOIDC, IdPModeOAuth2)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.AppEnv = strings.ToLower(getEnvString("APP_ENV", EnvProduction))
	switch cfg.AppEnv {
	case EnvProduction, EnvDevelopment, EnvTest:
	default:
		return nil, fmt.Errorf("invalid APP_ENV %q", cfg.AppEnv)
	}

	cfg.SkipDomainCheck = getEnvBool("SKIP_DOMAIN_CHECK", false)
	if cfg.SkipDomainCheck && cfg.AppEnv == EnvProduction {
		return nil, fmt.Errorf("SKIP_DOMAIN_CHECK must not be enabled when APP_ENV=%s", EnvProduction)
	}

	// Optional fields with defaults
	cfg.AutoMigrate = getEnvBool("AUTO_MIGRATE", true)
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.IdPScopes = getEnvList("IDP_SCOPES")
	if len(cfg.IdPScopes) == 0 {
		cfg.IdPScopes = []string{"openid", "profile", "email"}
	}
	cfg.IdPSkipIssuerCheck = getEnvBool("IDP_SKIP_ISSUER_CHECK", false)
	cfg.BootstrapAdminEmail = strings.ToLower(getEnvString("BOOTSTRAP_ADMIN_EMAIL", "admin@example.com"))
	cfg.BootstrapAdminPassword = os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	cfg.DefaultAllowedDomains = getEnvList("DEFAULT_ALLOWED_DOMAINS")
	cfg.PrimaryDomain = strings.ToLower(strings.TrimSpace(os.Getenv("PRIMARY_DOMAIN")))
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAdminWrite = getEnvInt("RATE_LIMIT_ADMIN_WRITE", 30)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

// IsProduction は本番環境として動作しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// DomainCheckBypass はドメインゲートを無条件に通過させるかを返す。
// 非本番環境かつSKIP_DOMAIN_CHECKが明示的に有効な場合のみtrueになる。
func (c *Config) DomainCheckBypass() bool {
	return !c.IsProduction() && c.SkipDomainCheck
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
