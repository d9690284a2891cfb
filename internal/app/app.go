// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/minato/clinicport/internal/appointment"
	"github.com/minato/clinicport/internal/config"
	"github.com/minato/clinicport/internal/database"
	"github.com/minato/clinicport/internal/handler"
	"github.com/minato/clinicport/internal/history"
	"github.com/minato/clinicport/internal/logger"
	"github.com/minato/clinicport/internal/metrics"
	"github.com/minato/clinicport/internal/middleware"
	"github.com/minato/clinicport/internal/news"
	"github.com/minato/clinicport/internal/platform"
	"github.com/minato/clinicport/internal/repository"
	"github.com/minato/clinicport/internal/security"
	"github.com/minato/clinicport/internal/session"
	"github.com/minato/clinicport/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続（ポータルセッションの保管にのみ使用）
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. セキュリティサービスの初期化
	outboundGuard := security.NewOutboundGuard()
	sanitizer := security.NewInputSanitizer()

	// 4. プラットフォームクライアントの初期化
	// 外向きHTTPはすべてSSRFガード付きクライアントを経由する
	platformClient := platform.NewClient(
		cfg.PlatformURL,
		cfg.PlatformAnonKey,
		outboundGuard.NewSafeClient(cfg.PlatformTimeout),
		slog.Default(),
		collector,
	)
	authClient := platform.NewAuthClient(platformClient, slog.Default())
	restClient := platform.NewRestClient(platformClient, slog.Default())
	storageClient := platform.NewStorageClient(platformClient, cfg.StorageBucket, slog.Default())

	// 5. セッション層の初期化
	sessionRepo := repository.NewPostgresPortalSessionRepo(db)
	gatewayFactory := platform.NewGatewayFactory(
		authClient, restClient, sessionRepo,
		time.Duration(cfg.SessionMaxAge)*time.Second,
		cfg.TokenRefreshMargin,
		slog.Default(),
	)
	sessionRegistry := session.NewRegistry(gatewayFactory, cfg.ManagerIdleTTL, slog.Default())

	// 6. ドメインサービスの初期化
	appointmentService := appointment.NewService(restClient, sanitizer, collector, slog.Default())
	historyService := history.NewService(restClient, storageClient, sanitizer, collector, slog.Default())
	newsService := news.NewService(
		cfg.NewsFeedURL,
		outboundGuard.NewSafeClient(cfg.PlatformTimeout),
		sanitizer,
		cfg.NewsCacheTTL,
		slog.Default(),
	)

	// 7. ルーターの構築
	// configのレート上限はreq/min単位なのでreq/secに変換する
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		UploadRate:      rate.Limit(float64(cfg.RateLimitUpload) / 60.0),
		UploadBurst:     cfg.RateLimitUpload,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	sessionConfig := middleware.SessionConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
		MaxAge:       cfg.SessionMaxAge,
	}

	router := handler.NewRouter(&handler.RouterDeps{
		ManagerProvider: sessionRegistry,
		SessionConfig:   sessionConfig,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		SessionRemover: sessionRegistry,
		AuthMetrics:    collector,

		AppointmentService: appointmentService,
		HistoryService:     historyService,
		HomeDataAPI:        restClient,
		NewsProvider:       newsService,

		UploadMaxSize: cfg.UploadMaxSize,
	})

	// /metricsはアプリのルーティングとは独立に公開する
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.Handle("/", router)

	// 8. バックグラウンドジョブの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// アイドルセッションマネージャの回収
	sessionRegistry.StartCleanupLoop(ctx, cfg.ManagerIdleTTL/2)

	// アクティブセッション数のゲージ更新
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collector.RecordActiveSessions(sessionRegistry.Len())
			}
		}
	}()

	// 期限切れポータルセッション行の日次削除
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// バックグラウンドジョブを停止し、保持中のセッションマネージャを閉じる
	cancel()

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
