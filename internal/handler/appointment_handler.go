package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/minato/clinicport/internal/appointment"
	"github.com/minato/clinicport/internal/model"
)

// AppointmentServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type AppointmentServiceInterface interface {
	ListDoctors(ctx context.Context, accessToken string) ([]model.Doctor, error)
	ListServices(ctx context.Context, accessToken string) ([]model.ClinicService, error)
	ListAppointments(ctx context.Context, accessToken, patientID string) ([]model.Appointment, error)
	Book(ctx context.Context, accessToken, patientID string, input *appointment.BookingInput) (*model.Appointment, error)
	UpcomingCount(appointments []model.Appointment) int
}

// AppointmentHandler は予約関連のHTTPハンドラー。
type AppointmentHandler struct {
	service AppointmentServiceInterface
}

// NewAppointmentHandler はAppointmentHandlerを生成する。
func NewAppointmentHandler(service AppointmentServiceInterface) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

// ListDoctors は医師の一覧を返す。
// GET /api/doctors
func (h *AppointmentHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	manager, _, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	doctors, err := h.service.ListDoctors(r.Context(), manager.AccessToken())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doctors": doctors})
}

// ListServices は診療サービスの一覧を返す。
// GET /api/services
func (h *AppointmentHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	manager, _, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	services, err := h.service.ListServices(r.Context(), manager.AccessToken())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": services})
}

// List は患者の予約一覧と今後の予約件数を返す。
// GET /api/appointments
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	manager, snapshot, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	appointments, err := h.service.ListAppointments(r.Context(), manager.AccessToken(), snapshot.Identity.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"appointments":   appointments,
		"upcoming_count": h.service.UpcomingCount(appointments),
	})
}

// Book は予約を登録する。
// POST /api/appointments
func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	manager, snapshot, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	var input appointment.BookingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを解析できません"))
		return
	}

	created, err := h.service.Book(r.Context(), manager.AccessToken(), snapshot.Identity.ID, &input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
