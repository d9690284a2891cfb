package appointment

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minato/clinicport/internal/logger"
	"github.com/minato/clinicport/internal/model"
)

type mockDataAPI struct {
	listDoctorsFunc       func(ctx context.Context, accessToken string) ([]model.Doctor, error)
	listServicesFunc      func(ctx context.Context, accessToken string) ([]model.ClinicService, error)
	listAppointmentsFunc  func(ctx context.Context, accessToken, patientID string) ([]model.Appointment, error)
	createAppointmentFunc func(ctx context.Context, accessToken string, appointment *model.Appointment) (*model.Appointment, error)
	createCalls           int
}

func (m *mockDataAPI) ListDoctors(ctx context.Context, accessToken string) ([]model.Doctor, error) {
	if m.listDoctorsFunc != nil {
		return m.listDoctorsFunc(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockDataAPI) ListServices(ctx context.Context, accessToken string) ([]model.ClinicService, error) {
	if m.listServicesFunc != nil {
		return m.listServicesFunc(ctx, accessToken)
	}
	return nil, nil
}

func (m *mockDataAPI) ListAppointments(ctx context.Context, accessToken, patientID string) ([]model.Appointment, error) {
	if m.listAppointmentsFunc != nil {
		return m.listAppointmentsFunc(ctx, accessToken, patientID)
	}
	return nil, nil
}

func (m *mockDataAPI) CreateAppointment(ctx context.Context, accessToken string, appointment *model.Appointment) (*model.Appointment, error) {
	m.createCalls++
	if m.createAppointmentFunc != nil {
		return m.createAppointmentFunc(ctx, accessToken, appointment)
	}
	return appointment, nil
}

var _ DataAPI = (*mockDataAPI)(nil)

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeText(input string) string { return input }

type markingSanitizer struct{ called bool }

func (m *markingSanitizer) SanitizeText(input string) string {
	m.called = true
	return "sanitized"
}

func newTestService(api *mockDataAPI, sanitizer Sanitizer) *Service {
	return NewService(api, sanitizer, nil, logger.Setup(io.Discard))
}

func TestService_Book_Success_StatusPending(t *testing.T) {
	api := &mockDataAPI{}
	svc := newTestService(api, passthroughSanitizer{})

	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	created, err := svc.Book(context.Background(), "at-1", "user-1", &BookingInput{
		DoctorID:        "doc-1",
		AppointmentDate: tomorrow,
		AppointmentTime: "10:00",
		Notes:           "膝の痛みが続いています",
	})
	if err != nil {
		t.Fatalf("Book returned error: %v", err)
	}
	if created.Status != model.AppointmentPending {
		t.Errorf("expected pending status, got %s", created.Status)
	}
	if created.PatientID != "user-1" {
		t.Errorf("expected patient_id user-1, got %s", created.PatientID)
	}
}

func TestService_Book_MissingDoctor_InvalidAppointment(t *testing.T) {
	api := &mockDataAPI{}
	svc := newTestService(api, passthroughSanitizer{})

	_, err := svc.Book(context.Background(), "at-1", "user-1", &BookingInput{
		AppointmentDate: "2099-01-01",
		AppointmentTime: "10:00",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAppointment {
		t.Errorf("expected INVALID_APPOINTMENT, got %v", err)
	}
	if api.createCalls != 0 {
		t.Errorf("expected no create call, got %d", api.createCalls)
	}
}

func TestService_Book_PastDate_InvalidAppointment(t *testing.T) {
	api := &mockDataAPI{}
	svc := newTestService(api, passthroughSanitizer{})

	_, err := svc.Book(context.Background(), "at-1", "user-1", &BookingInput{
		DoctorID:        "doc-1",
		AppointmentDate: "2020-01-01",
		AppointmentTime: "10:00",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAppointment {
		t.Errorf("expected INVALID_APPOINTMENT for past date, got %v", err)
	}
}

func TestService_Book_MalformedDate_InvalidAppointment(t *testing.T) {
	api := &mockDataAPI{}
	svc := newTestService(api, passthroughSanitizer{})

	_, err := svc.Book(context.Background(), "at-1", "user-1", &BookingInput{
		DoctorID:        "doc-1",
		AppointmentDate: "01/07/2099",
		AppointmentTime: "10:00",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAppointment {
		t.Errorf("expected INVALID_APPOINTMENT for malformed date, got %v", err)
	}
}

func TestService_Book_SanitizesNotes(t *testing.T) {
	api := &mockDataAPI{}
	sanitizer := &markingSanitizer{}
	svc := newTestService(api, sanitizer)

	var savedNotes string
	api.createAppointmentFunc = func(ctx context.Context, accessToken string, appointment *model.Appointment) (*model.Appointment, error) {
		savedNotes = appointment.Notes
		return appointment, nil
	}

	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	_, err := svc.Book(context.Background(), "at-1", "user-1", &BookingInput{
		DoctorID:        "doc-1",
		AppointmentDate: tomorrow,
		AppointmentTime: "10:00",
		Notes:           `<script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("Book returned error: %v", err)
	}
	if !sanitizer.called {
		t.Error("expected notes to pass through the sanitizer")
	}
	if savedNotes != "sanitized" {
		t.Errorf("expected sanitized notes to be saved, got %q", savedNotes)
	}
}

func TestService_UpcomingCount_CountsPendingAndConfirmedOnly(t *testing.T) {
	svc := newTestService(&mockDataAPI{}, passthroughSanitizer{})

	future := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	past := "2020-01-01"
	appointments := []model.Appointment{
		{Status: model.AppointmentPending, AppointmentDate: future},
		{Status: model.AppointmentConfirmed, AppointmentDate: future},
		{Status: model.AppointmentCompleted, AppointmentDate: future},
		{Status: model.AppointmentCancelled, AppointmentDate: future},
		{Status: model.AppointmentConfirmed, AppointmentDate: past},
	}

	if got := svc.UpcomingCount(appointments); got != 2 {
		t.Errorf("expected 2 upcoming appointments, got %d", got)
	}
}
