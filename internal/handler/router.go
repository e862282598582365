package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/agentdesk/internal/metrics"
	"github.com/hitoshi/agentdesk/internal/middleware"
	"github.com/hitoshi/agentdesk/internal/webui"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.TokenResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 観測
	HealthChecker HealthChecker
	Metrics       *metrics.Collector
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// エージェント
	AgentService AgentServiceInterface

	// ページ
	Pages *webui.PageHandler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → CSRF
//
// 保護対象（/api/agents、/api/auth/me、/dashboard、/agents配下）では
// セッション検証がハンドラー実行より必ず先に行われる。
// ガードを通らないパスは公開ページとしてそのまま到達可能となる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	agentHandler := NewAgentHandler(deps.AgentService, deps.Metrics)

	// --- 観測エンドポイント ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- 認証不要のルート ---

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
	})

	r.Post("/auth/logout", authHandler.Logout)

	// 公開ページ
	r.Get("/", deps.Pages.Landing)
	r.Get("/login", deps.Pages.Login)
	r.Get("/signup", deps.Pages.Signup)

	// --- 認証が必要なAPIルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/auth/me", authHandler.Me)

		r.Route("/api/agents", func(r chi.Router) {
			// POST /api/agents - エージェント作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.AgentCreationMiddleware()).Post("/", agentHandler.CreateAgent)
			r.Get("/", agentHandler.ListAgents)
		})
	})

	// --- 認証が必要なページルート ---
	// 未認証の場合は/loginへリダイレクトする
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPageGuardMiddleware(deps.SessionResolver, "/login"))

		r.Get("/dashboard", deps.Pages.Dashboard)
		r.Get("/agents", deps.Pages.Agents)
		r.Get("/agents/new", deps.Pages.NewAgent)
	})

	return r
}

// newHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
