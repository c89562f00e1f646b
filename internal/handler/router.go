package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feednest/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusObserver    func(statusCode int) // HTTPステータスコードのメトリクス通知。nil可。

	// サービス
	AuthService         AuthServiceInterface
	AuthConfig          AuthHandlerConfig
	SubscriptionService SubscriptionServiceInterface
	ItemService         ItemServiceInterface

	// 運用エンドポイント
	MetricsHandler http.Handler
	HealthHandler  http.HandlerFunc
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → (Session → RateLimit)
//
// 登録・ログインと運用エンドポイントはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusObserver))
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	feedHandler := NewFeedHandler(deps.SubscriptionService, deps.ItemService)
	itemHandler := NewItemHandler(deps.ItemService)

	// --- 認証不要のルート ---

	r.Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)
	r.Post("/logout", authHandler.Logout)

	if deps.HealthHandler != nil {
		r.Get("/health", deps.HealthHandler)
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/me", authHandler.Me)

		// フィード購読管理
		r.Route("/feeds", func(r chi.Router) {
			// POST /feeds - 購読追加（購読専用レート制限を追加）
			r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/", feedHandler.Subscribe)
			r.Get("/", feedHandler.List)

			r.Route("/{feedID}", func(r chi.Router) {
				r.Get("/", feedHandler.Detail)
				r.Patch("/", feedHandler.Update)
				r.Delete("/", feedHandler.Unsubscribe)
				r.Post("/refresh", feedHandler.Refresh)
			})
		})

		// 記事管理
		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.List)

			r.Route("/{itemID}", func(r chi.Router) {
				r.Get("/", itemHandler.Get)
				r.Patch("/", itemHandler.UpdateState)
				r.Post("/star", itemHandler.ToggleStar)
			})
		})
	})

	return r
}
