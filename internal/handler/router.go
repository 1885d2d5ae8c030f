package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Vinay94278/postmate/internal/metrics"
	"github.com/Vinay94278/postmate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	Logger            *slog.Logger

	// クレデンシャル
	Credentials CredentialRepository

	// 生成
	Generator Generator

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Identity → RateLimit(General)
//
// /health と /metrics は識別ヘッダーなしでアクセスできる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))

	credHandler := NewCredentialHandler(deps.Credentials, deps.Metrics, deps.Logger)
	genHandler := NewGenerateHandler(deps.Credentials, deps.Generator, deps.Metrics, deps.Logger)
	healthHandler := NewHealthHandler(deps.DB, deps.Logger)

	// --- 識別不要のルート ---
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("API is running. Use the postmate client to interact with this service."))
	})
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- ユーザー識別が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/profile", credHandler.GetProfile)
		r.Post("/save-api-keys", credHandler.SaveAPIKeys)

		// POST /generate（生成専用レート制限を追加）
		r.With(deps.RateLimiter.GenerateMiddleware()).Post("/generate", genHandler.Generate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})

	return r
}
