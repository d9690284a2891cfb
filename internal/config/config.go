// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（ポータルセッションの保管のみに使用）
	DatabaseURL string

	// Platform（ホスティングプラットフォーム）
	PlatformURL     string
	PlatformAnonKey string
	PlatformTimeout time.Duration
	StorageBucket   string

	// Session
	SessionMaxAge      int           // ポータルセッションCookieの有効期間（秒）
	TokenRefreshMargin time.Duration // アクセストークン失効何秒前にリフレッシュするか
	ManagerIdleTTL     time.Duration // アイドル状態のセッションマネージャを破棄するまでの時間

	// Upload
	UploadMaxSize int64

	// News
	NewsFeedURL  string
	NewsCacheTTL time.Duration

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitUpload  int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む（本番では存在しない想定）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.PlatformURL = os.Getenv("PLATFORM_URL")
	if cfg.PlatformURL == "" {
		missing = append(missing, "PLATFORM_URL")
	}

	cfg.PlatformAnonKey = os.Getenv("PLATFORM_ANON_KEY")
	if cfg.PlatformAnonKey == "" {
		missing = append(missing, "PLATFORM_ANON_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PlatformTimeout = getEnvDuration("PLATFORM_TIMEOUT", 10*time.Second)
	cfg.StorageBucket = getEnvString("STORAGE_BUCKET", "patient-documents")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.TokenRefreshMargin = getEnvDuration("TOKEN_REFRESH_MARGIN", 60*time.Second)
	cfg.ManagerIdleTTL = getEnvDuration("MANAGER_IDLE_TTL", 30*time.Minute)
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 10485760)
	cfg.NewsFeedURL = getEnvString("NEWS_FEED_URL", "")
	cfg.NewsCacheTTL = getEnvDuration("NEWS_CACHE_TTL", 15*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
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
