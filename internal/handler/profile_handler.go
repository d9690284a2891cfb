package handler

import (
	"encoding/json"
	"net/http"

	"github.com/minato/clinicport/internal/model"
)

// ProfileHandler はプロフィール関連のHTTPハンドラー。
type ProfileHandler struct{}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler() *ProfileHandler {
	return &ProfileHandler{}
}

// Get は認証済み患者のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, snapshot, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	if snapshot.Profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError())
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Profile)
}

// Update はプロフィールを部分更新し、サーバー確定後のレコードを返す。
// PATCH /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	manager, _, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	var update model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを解析できません"))
		return
	}
	if update.IsEmpty() {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("更新するフィールドがありません"))
		return
	}

	if err := manager.UpdateProfile(r.Context(), &update); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, manager.Snapshot().Profile)
}
