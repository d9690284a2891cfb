package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/minato/clinicport/internal/model"
)

// HomeDataAPI はホームページ表示に必要な公開データの取得インターフェース。
// 匿名キーでアクセスするため、アクセストークンは空文字列で呼び出す。
type HomeDataAPI interface {
	ListDoctors(ctx context.Context, accessToken string) ([]model.Doctor, error)
	ListServices(ctx context.Context, accessToken string) ([]model.ClinicService, error)
}

// NewsProvider はお知らせの取得インターフェース。
type NewsProvider interface {
	Latest(ctx context.Context) []model.NewsItem
}

// HomeHandler はホームページ用データのHTTPハンドラー。
// 医師・診療サービス・お知らせをまとめて返す。認証は不要。
type HomeHandler struct {
	api  HomeDataAPI
	news NewsProvider
}

// NewHomeHandler はHomeHandlerを生成する。
func NewHomeHandler(api HomeDataAPI, news NewsProvider) *HomeHandler {
	return &HomeHandler{api: api, news: news}
}

// Home はホームページ表示用のデータを返す。
// 一部の取得に失敗してもページ全体は表示できるよう、失敗した項目は
// 空のリストに縮退してログのみに記録する。
// GET /api/home
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doctors, err := h.api.ListDoctors(ctx, "")
	if err != nil {
		slog.Warn("failed to load doctors for homepage", slog.String("error", err.Error()))
		doctors = []model.Doctor{}
	}

	services, err := h.api.ListServices(ctx, "")
	if err != nil {
		slog.Warn("failed to load services for homepage", slog.String("error", err.Error()))
		services = []model.ClinicService{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"doctors":  doctors,
		"services": services,
		"news":     h.news.Latest(ctx),
	})
}
