package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minato/clinicport/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	ManagerProvider   middleware.ManagerProvider
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	SessionRemover SessionRemover
	AuthMetrics    AuthMetrics

	// ドメインサービス
	AppointmentService AppointmentServiceInterface
	HistoryService     HistoryServiceInterface
	HomeDataAPI        HomeDataAPI
	NewsProvider       NewsProvider

	// アップロード
	UploadMaxSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → PortalSession → CSRF → RateLimit(General)
//
// ヘルスチェック（/healthz）はセッション処理の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.SessionRemover, deps.AuthMetrics, deps.SessionConfig)
	profileHandler := NewProfileHandler()
	appointmentHandler := NewAppointmentHandler(deps.AppointmentService)
	historyHandler := NewHistoryHandler(deps.HistoryService, deps.UploadMaxSize)
	homeHandler := NewHomeHandler(deps.HomeDataAPI, deps.NewsProvider)

	// ヘルスチェック（ミドルウェアチェーンの外）
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// ポータルセッション配下のルート
	// 未認証リクエストも通過させ、認証要否は各ハンドラーが状態を見て判断する
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPortalSessionMiddleware(deps.ManagerProvider, deps.SessionConfig))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// CSRFトークン取得
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// ホームページ（公開）
		r.Get("/api/home", homeHandler.Home)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Patch("/", profileHandler.Update)
		})

		// 予約
		r.Get("/api/doctors", appointmentHandler.ListDoctors)
		r.Get("/api/services", appointmentHandler.ListServices)
		r.Route("/api/appointments", func(r chi.Router) {
			r.Get("/", appointmentHandler.List)
			r.Post("/", appointmentHandler.Book)
		})

		// 診療履歴
		r.Route("/api/history", func(r chi.Router) {
			r.Get("/", historyHandler.List)
			// POST /api/history - ファイルアップロードを含むためアップロード専用レート制限を追加
			r.With(deps.RateLimiter.UploadMiddleware()).Post("/", historyHandler.Add)
			r.Delete("/{id}", historyHandler.Delete)
		})
	})

	return r
}
