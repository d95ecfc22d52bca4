package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/idgate/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	HSTS              bool
	APIKeys           []string
	TokenVerifier     middleware.TokenVerifier
	Accounts          middleware.AccountFinder
	RejectionRecorder middleware.RejectionRecorder
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthEngine AuthEngine
	AuthConfig AuthHandlerConfig

	// 管理
	UserService   UserServiceInterface
	DomainService DomainServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通:
//
//	Recovery → Logging → SecurityHeaders → CORS
//
// 保護ルートの実行順序:
//
//	APIKey → Bearer → RateLimit(General) → RequireAdmin → RateLimit(AdminWrite)
//
// IdPコールバックはIdPから直接呼ばれるためAPIキーを要求しない。
// ログイン系のルートにはレート制限をかけない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthEngine, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	domainHandler := NewDomainHandler(deps.DomainService)

	apiKey := middleware.NewAPIKeyMiddleware(deps.APIKeys)
	bearer := middleware.NewBearerMiddleware(deps.TokenVerifier, deps.Accounts, deps.RejectionRecorder)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		// IdPコールバック（GETはリダイレクト、POSTはJSON）
		r.Get("/idp/callback", authHandler.Callback)
		r.Post("/idp/callback", authHandler.Callback)

		// --- サービス認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(apiKey)

			r.Post("/login", authHandler.Login)
			r.Get("/idp/login", authHandler.IdPLogin)
			r.Post("/check-domain", authHandler.CheckDomain)

			r.With(bearer, deps.RateLimiter.GeneralMiddleware()).Get("/me", authHandler.Me)
		})
	})

	// --- 管理者のみのルート ---
	r.Group(func(r chi.Router) {
		r.Use(apiKey)
		r.Use(bearer)
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.RequireAdmin())
		r.Use(deps.RateLimiter.AdminWriteMiddleware())

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Patch("/toggle", userHandler.ToggleStatus)
				r.Patch("/role", userHandler.UpdateRole)
			})
		})

		r.Route("/api/domains", func(r chi.Router) {
			r.Get("/", domainHandler.List)
			r.Post("/", domainHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", domainHandler.Get)
				r.Put("/", domainHandler.Update)
				r.Delete("/", domainHandler.Delete)
				r.Patch("/toggle", domainHandler.Toggle)
			})
		})
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler はDBに疎通できれば200、できなければ503を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
