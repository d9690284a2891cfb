// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/minato/clinicport/internal/middleware"
	"github.com/minato/clinicport/internal/model"
	"github.com/minato/clinicport/internal/session"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeEmailAlreadyRegistered:
		return http.StatusConflict
	case model.ErrCodeValidationError, model.ErrCodeInvalidDocumentType, model.ErrCodeInvalidAppointment:
		return http.StatusBadRequest
	case model.ErrCodeProfileNotFound, model.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case model.ErrCodeNetworkError, model.ErrCodeUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requireManager はリクエストコンテキストからセッションマネージャを取り出す。
// 取り出せない場合は500を書き込みfalseを返す。
func requireManager(w http.ResponseWriter, r *http.Request) (*session.Manager, bool) {
	manager, err := middleware.ManagerFromContext(r.Context())
	if err != nil {
		slog.Error("session manager missing from context", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return manager, true
}

// requireAuthenticated は認証済みセッションを要求する。
// 未認証の場合は401を書き込みfalseを返す。
func requireAuthenticated(w http.ResponseWriter, r *http.Request) (*session.Manager, session.Snapshot, bool) {
	manager, ok := requireManager(w, r)
	if !ok {
		return nil, session.Snapshot{}, false
	}

	snapshot := manager.Snapshot()
	if snapshot.State != session.StateAuthenticated {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
		return nil, session.Snapshot{}, false
	}
	return manager, snapshot, true
}
