package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minato/clinicport/internal/middleware"
	"github.com/minato/clinicport/internal/model"
)

// SessionRemover はポータルセッションとセッションマネージャの紐づけを解消する
// インターフェース。session.Registryの部分集合として定義する。
type SessionRemover interface {
	Remove(portalSessionID string)
}

// AuthMetrics は認証試行のメトリクス記録インターフェース。nil可。
type AuthMetrics interface {
	RecordSignIn(success bool)
	RecordSignUp(success bool)
}

// AuthHandler は認証関連のHTTPハンドラー。
// 実際の認証処理はリクエストコンテキスト内のセッションマネージャに委譲する。
type AuthHandler struct {
	remover SessionRemover
	metrics AuthMetrics
	config  middleware.SessionConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(remover SessionRemover, metrics AuthMetrics, config middleware.SessionConfig) *AuthHandler {
	return &AuthHandler{
		remover: remover,
		metrics: metrics,
		config:  config,
	}
}

// registerRequest は新規登録リクエストのボディ。
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register は新規アカウントを登録してサインインする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを解析できません"))
		return
	}
	if err := validateCredentials(req.Email, req.Password); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("氏名を入力してください"))
		return
	}

	if err := manager.SignUp(r.Context(), req.Email, req.Password, req.FullName); err != nil {
		if h.metrics != nil {
			h.metrics.RecordSignUp(false)
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignUp(true)
	}
	writeJSON(w, http.StatusCreated, manager.Snapshot())
}

// Login はメールアドレスとパスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを解析できません"))
		return
	}
	if err := validateCredentials(req.Email, req.Password); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return
	}

	if err := manager.SignIn(r.Context(), req.Email, req.Password); err != nil {
		if h.metrics != nil {
			h.metrics.RecordSignIn(false)
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignIn(true)
	}
	writeJSON(w, http.StatusOK, manager.Snapshot())
}

// Logout はサインアウトする。プラットフォーム側の無効化に失敗しても
// ローカルのセッション破棄とCookieのクリアは必ず行う。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}

	if err := manager.SignOut(r.Context()); err != nil {
		slog.Warn("sign-out completed with error", slog.String("error", err.Error()))
	}

	// マネージャを破棄してブラウザセッションとの紐づけを解消する
	if portalSessionID, err := middleware.PortalSessionIDFromContext(r.Context()); err == nil {
		h.remover.Remove(portalSessionID)
	}

	middleware.ClearPortalSessionCookie(w, h.config)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション状態を返す。未認証でも200で状態を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	manager, ok := requireManager(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, manager.Snapshot())
}

// validateCredentials はメールアドレスとパスワードの形式を検証する。
func validateCredentials(email, password string) *model.APIError {
	if strings.TrimSpace(email) == "" || !strings.Contains(email, "@") {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if len(password) < 6 {
		return model.NewValidationError("パスワードは6文字以上で入力してください")
	}
	return nil
}
