// Package appointment は診療予約のユースケースを提供する。
package appointment

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/minato/clinicport/internal/model"
)

// DataAPI は予約関連テーブルへのアクセスインターフェース。
type DataAPI interface {
	ListDoctors(ctx context.Context, accessToken string) ([]model.Doctor, error)
	ListServices(ctx context.Context, accessToken string) ([]model.ClinicService, error)
	ListAppointments(ctx context.Context, accessToken, patientID string) ([]model.Appointment, error)
	CreateAppointment(ctx context.Context, accessToken string, appointment *model.Appointment) (*model.Appointment, error)
}

// Sanitizer は自由入力テキストの無害化インターフェース。
type Sanitizer interface {
	SanitizeText(input string) string
}

// BookingRecorder は予約登録のメトリクス記録インターフェース。nil可。
type BookingRecorder interface {
	RecordBooking()
}

// Service は予約ユースケースの実装。
type Service struct {
	api       DataAPI
	sanitizer Sanitizer
	metrics   BookingRecorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api DataAPI, sanitizer Sanitizer, metrics BookingRecorder, logger *slog.Logger) *Service {
	return &Service{api: api, sanitizer: sanitizer, metrics: metrics, logger: logger}
}

// BookingInput は予約フォームの入力内容を表す。
type BookingInput struct {
	DoctorID        string `json:"doctor_id"`
	ServiceID       string `json:"service_id,omitempty"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes,omitempty"`
}

// ListDoctors は医師の一覧を返す。
func (s *Service) ListDoctors(ctx context.Context, accessToken string) ([]model.Doctor, error) {
	return s.api.ListDoctors(ctx, accessToken)
}

// ListServices は診療サービスの一覧を返す。
func (s *Service) ListServices(ctx context.Context, accessToken string) ([]model.ClinicService, error) {
	return s.api.ListServices(ctx, accessToken)
}

// ListAppointments は患者の予約一覧を返す。
func (s *Service) ListAppointments(ctx context.Context, accessToken, patientID string) ([]model.Appointment, error) {
	return s.api.ListAppointments(ctx, accessToken, patientID)
}

// Book は予約を登録する。医師・日付・時刻は必須で、過去の日付は受け付けない。
// 備考は無害化したうえで保存し、ステータスはpendingで登録される。
func (s *Service) Book(ctx context.Context, accessToken, patientID string, input *BookingInput) (*model.Appointment, error) {
	if strings.TrimSpace(input.DoctorID) == "" {
		return nil, model.NewInvalidAppointmentError("医師を選択してください")
	}
	if strings.TrimSpace(input.AppointmentDate) == "" {
		return nil, model.NewInvalidAppointmentError("予約日を指定してください")
	}
	if strings.TrimSpace(input.AppointmentTime) == "" {
		return nil, model.NewInvalidAppointmentError("予約時刻を指定してください")
	}

	date, err := time.Parse("2006-01-02", input.AppointmentDate)
	if err != nil {
		return nil, model.NewInvalidAppointmentError("予約日の形式が正しくありません（YYYY-MM-DD）")
	}
	today := time.Now().Truncate(24 * time.Hour)
	if date.Before(today) {
		return nil, model.NewInvalidAppointmentError("過去の日付は指定できません")
	}

	appointment := &model.Appointment{
		PatientID:       patientID,
		DoctorID:        input.DoctorID,
		ServiceID:       input.ServiceID,
		AppointmentDate: input.AppointmentDate,
		AppointmentTime: input.AppointmentTime,
		Status:          model.AppointmentPending,
		Notes:           s.sanitizer.SanitizeText(input.Notes),
	}

	created, err := s.api.CreateAppointment(ctx, accessToken, appointment)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordBooking()
	}
	s.logger.Info("予約を登録しました",
		slog.String("patient_id", patientID),
		slog.String("doctor_id", created.DoctorID),
		slog.String("appointment_date", created.AppointmentDate),
	)
	return created, nil
}

// UpcomingCount は今後の予約（pendingまたはconfirmed）の件数を返す。
// ダッシュボードのサマリ表示に使用する。
func (s *Service) UpcomingCount(appointments []model.Appointment) int {
	today := time.Now().Format("2006-01-02")
	count := 0
	for _, apt := range appointments {
		if apt.Status != model.AppointmentPending && apt.Status != model.AppointmentConfirmed {
			continue
		}
		if apt.AppointmentDate >= today {
			count++
		}
	}
	return count
}
