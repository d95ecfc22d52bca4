// Package app はアプリケーションの組み立てと起動を行うコンポジションルート。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/idgate/internal/allowlist"
	"github.com/hitoshi/idgate/internal/auth"
	"github.com/hitoshi/idgate/internal/config"
	"github.com/hitoshi/idgate/internal/database"
	"github.com/hitoshi/idgate/internal/handler"
	"github.com/hitoshi/idgate/internal/logger"
	"github.com/hitoshi/idgate/internal/metrics"
	"github.com/hitoshi/idgate/internal/middleware"
	"github.com/hitoshi/idgate/internal/repository"
	"github.com/hitoshi/idgate/internal/security"
	"github.com/hitoshi/idgate/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("idp_mode", cfg.IdPMode),
	)
	if cfg.DomainCheckBypass() {
		slog.Warn("domain check bypass is enabled; every e-mail domain will be accepted",
			slog.String("env", cfg.AppEnv),
		)
	}

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// マイグレーションと初期データの投入を行い、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. マイグレーション
	if cfg.AutoMigrate {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}

	// 2. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 3. 依存関係の組み立て
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c, err := wire(cfg, db, reg)
	if err != nil {
		return err
	}
	defer c.limiter.Stop()

	// 4. 初期データの投入
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	err = seed(seedCtx, cfg, c.users, c.domains)
	cancelSeed()
	if err != nil {
		return err
	}

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      c.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// components はwireで組み立てた実行時の依存関係。
type components struct {
	router  http.Handler
	limiter *middleware.RateLimiter
	users   *user.Service
	domains *allowlist.Service
}

// wire はリポジトリからルーターまでの依存関係を組み立てる。
// この時点ではDBにもIdPにも問い合わせない。
func wire(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*components, error) {
	// リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(db)
	domainRepo := repository.NewPostgresDomainRepo(db)

	// 認証
	tokens, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	hasher := auth.NewBcryptHasher(0)
	resolver := auth.NewResolver(accountRepo, hasher)
	gate := auth.NewDomainGate(domainRepo, cfg.DomainCheckBypass())
	collector := metrics.NewCollector(reg)

	engine := auth.NewEngine(
		resolver, gate, tokens, newIdentityProvider(cfg), domainRepo,
		auth.EngineConfig{RedirectURI: cfg.IdPRedirectURL, Scopes: cfg.IdPScopes},
		auth.WithSanitizer(security.NewProfileSanitizer()),
		auth.WithRecorder(collector),
	)

	// 管理
	users := user.NewService(accountRepo, resolver, hasher, cfg.BootstrapAdminEmail)
	domains := allowlist.NewService(domainRepo, cfg.PrimaryDomain)

	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAdminWrite))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.IsProduction(),
		APIKeys:           cfg.APIKeys,
		TokenVerifier:     tokens,
		Accounts:          accountRepo,
		RejectionRecorder: collector,
		RateLimiter:       limiter,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
		AuthEngine:        engine,
		AuthConfig:        handler.AuthHandlerConfig{FrontendURL: cfg.FrontendURL},
		UserService:       users,
		DomainService:     domains,
	})

	return &components{router: router, limiter: limiter, users: users, domains: domains}, nil
}

// newIdentityProvider はIDP_MODEに応じたIdPアダプタを返す。
func newIdentityProvider(cfg *config.Config) auth.IdentityProvider {
	if cfg.IdPMode == config.IdPModeOAuth2 {
		return auth.NewOAuth2Provider(auth.OAuth2Config{
			ClientID:     cfg.IdPClientID,
			ClientSecret: cfg.IdPClientSecret,
			AuthURL:      cfg.IdPAuthURL,
			TokenURL:     cfg.IdPTokenURL,
			UserInfoURL:  cfg.IdPUserInfoURL,
		})
	}
	return auth.NewOIDCProvider(auth.OIDCConfig{
		IssuerURL:       cfg.IdPIssuerURL,
		ClientID:        cfg.IdPClientID,
		ClientSecret:    cfg.IdPClientSecret,
		SkipIssuerCheck: cfg.IdPSkipIssuerCheck,
	})
}

// adminSeeder と domainSeeder は起動時の初期データ投入に使う。
type adminSeeder interface {
	SeedBootstrapAdmin(ctx context.Context, password string) (bool, error)
}

type domainSeeder interface {
	SeedDefaults(ctx context.Context, names []string) (int, error)
}

// seed は初期管理者と既定の許可ドメインを投入する。いずれも冪等。
// 主ドメインが設定されている場合は既定ドメインに含める。
func seed(ctx context.Context, cfg *config.Config, admins adminSeeder, domains domainSeeder) error {
	created, err := admins.SeedBootstrapAdmin(ctx, cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("failed to seed bootstrap admin: %w", err)
	}
	if !created {
		slog.Debug("bootstrap admin already exists")
	}

	names := cfg.DefaultAllowedDomains
	if cfg.PrimaryDomain != "" {
		names = append([]string{cfg.PrimaryDomain}, names...)
	}
	if _, err := domains.SeedDefaults(ctx, names); err != nil {
		return fmt.Errorf("failed to seed allowed domains: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
