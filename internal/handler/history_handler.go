package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minato/clinicport/internal/history"
	"github.com/minato/clinicport/internal/model"
)

// HistoryServiceInterface は診療履歴ハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	List(ctx context.Context, accessToken, patientID string) ([]model.HistoryRecord, error)
	Add(ctx context.Context, accessToken, patientID string, input *history.AddInput) (*model.HistoryRecord, error)
	Delete(ctx context.Context, accessToken, patientID, recordID string) error
}

// HistoryHandler は診療履歴関連のHTTPハンドラー。
type HistoryHandler struct {
	service       HistoryServiceInterface
	uploadMaxSize int64
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryServiceInterface, uploadMaxSize int64) *HistoryHandler {
	return &HistoryHandler{service: service, uploadMaxSize: uploadMaxSize}
}

// List は患者の診療履歴一覧を返す。
// GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	manager, snapshot, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	records, err := h.service.List(r.Context(), manager.AccessToken(), snapshot.Identity.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": records})
}

// Add は診療履歴レコードを登録する。添付ファイルはmultipart/form-dataの
// fileフィールドで受け取る（任意）。
// POST /api/history
func (h *HistoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	manager, snapshot, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxSize)
	if err := r.ParseMultipartForm(h.uploadMaxSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewUploadFailedError("ファイルサイズが上限を超えています"))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("multipart/form-dataを解析できません"))
		return
	}

	input := &history.AddInput{
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		DocumentType: model.DocumentType(r.FormValue("document_type")),
	}

	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		input.File = file
		input.FileName = header.Filename
		input.ContentType = header.Header.Get("Content-Type")
	} else if err != http.ErrMissingFile {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("添付ファイルを読み取れません"))
		return
	}

	created, err := h.service.Add(r.Context(), manager.AccessToken(), snapshot.Identity.ID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Delete は診療履歴レコードを削除する。
// DELETE /api/history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	manager, snapshot, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	recordID := chi.URLParam(r, "id")
	if recordID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("レコードIDが指定されていません"))
		return
	}

	if err := h.service.Delete(r.Context(), manager.AccessToken(), snapshot.Identity.ID, recordID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
