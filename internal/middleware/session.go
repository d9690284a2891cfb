// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/minato/clinicport/internal/session"
)

const portalSessionCookieName = "portal_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// managerContextKey はリクエストコンテキストにセッションマネージャを格納するためのキー。
var managerContextKey = contextKey("session_manager")

// portalSessionIDContextKey はリクエストコンテキストにポータルセッションIDを格納するためのキー。
var portalSessionIDContextKey = contextKey("portal_session_id")

// ManagerProvider はポータルセッションIDからセッションマネージャを取得する
// インターフェース。session.Registryの部分集合として定義する。
type ManagerProvider interface {
	GetOrCreate(ctx context.Context, portalSessionID string) (*session.Manager, error)
}

// SessionConfig はポータルセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int
}

// NewPortalSessionMiddleware はポータルセッションCookieを管理するミドルウェアを返す。
// Cookieが未設定の場合は新しいポータルセッションIDを発行し、
// 対応するセッションマネージャをリクエストコンテキストに注入する。
// 未認証リクエストも通過させる（認証要否の判断は各ハンドラーが状態を見て行う）。
func NewPortalSessionMiddleware(provider ManagerProvider, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからポータルセッションIDを取得。なければ発行する
			var portalSessionID string
			cookie, err := r.Cookie(portalSessionCookieName)
			if err == nil && cookie.Value != "" {
				portalSessionID = cookie.Value
			} else {
				portalSessionID = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     portalSessionCookieName,
					Value:    portalSessionID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			// 2. セッションマネージャを取得（初回は保存済みセッションの復元が走る）
			manager, err := provider.GetOrCreate(r.Context(), portalSessionID)
			if err != nil {
				slog.Error("failed to acquire session manager",
					slog.String("error", err.Error()),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			// 3. マネージャとポータルセッションIDをコンテキストに注入
			ctx := context.WithValue(r.Context(), managerContextKey, manager)
			ctx = context.WithValue(ctx, portalSessionIDContextKey, portalSessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ManagerFromContext はリクエストコンテキストからセッションマネージャを取得する。
// ポータルセッションミドルウェアを通過したリクエストでのみ有効。
func ManagerFromContext(ctx context.Context) (*session.Manager, error) {
	manager, ok := ctx.Value(managerContextKey).(*session.Manager)
	if !ok || manager == nil {
		return nil, fmt.Errorf("session manager not found in context")
	}
	return manager, nil
}

// PortalSessionIDFromContext はリクエストコンテキストからポータルセッションIDを取得する。
func PortalSessionIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(portalSessionIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("portal session ID not found in context")
	}
	return id, nil
}

// ContextWithManager はコンテキストにセッションマネージャを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithManager(ctx context.Context, manager *session.Manager) context.Context {
	return context.WithValue(ctx, managerContextKey, manager)
}

// ContextWithPortalSessionID はコンテキストにポータルセッションIDを注入する。
func ContextWithPortalSessionID(ctx context.Context, portalSessionID string) context.Context {
	return context.WithValue(ctx, portalSessionIDContextKey, portalSessionID)
}

// ClearPortalSessionCookie はポータルセッションCookieを失効させる。
// サインアウト時にハンドラーから呼ばれる。
func ClearPortalSessionCookie(w http.ResponseWriter, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     portalSessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
