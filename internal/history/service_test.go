package history

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minato/clinicport/internal/logger"
	"github.com/minato/clinicport/internal/model"
)

type mockDataAPI struct {
	listHistoryFunc   func(ctx context.Context, accessToken, patientID string) ([]model.HistoryRecord, error)
	createHistoryFunc func(ctx context.Context, accessToken string, record *model.HistoryRecord) (*model.HistoryRecord, error)
	findHistoryFunc   func(ctx context.Context, accessToken, patientID, recordID string) (*model.HistoryRecord, error)
	deleteHistoryFunc func(ctx context.Context, accessToken, recordID string) error
	deleteCalls       int
}

func (m *mockDataAPI) ListHistory(ctx context.Context, accessToken, patientID string) ([]model.HistoryRecord, error) {
	if m.listHistoryFunc != nil {
		return m.listHistoryFunc(ctx, accessToken, patientID)
	}
	return nil, nil
}

func (m *mockDataAPI) CreateHistory(ctx context.Context, accessToken string, record *model.HistoryRecord) (*model.HistoryRecord, error) {
	if m.createHistoryFunc != nil {
		return m.createHistoryFunc(ctx, accessToken, record)
	}
	return record, nil
}

func (m *mockDataAPI) FindHistory(ctx context.Context, accessToken, patientID, recordID string) (*model.HistoryRecord, error) {
	if m.findHistoryFunc != nil {
		return m.findHistoryFunc(ctx, accessToken, patientID, recordID)
	}
	return nil, nil
}

func (m *mockDataAPI) DeleteHistory(ctx context.Context, accessToken, recordID string) error {
	m.deleteCalls++
	if m.deleteHistoryFunc != nil {
		return m.deleteHistoryFunc(ctx, accessToken, recordID)
	}
	return nil
}

var _ DataAPI = (*mockDataAPI)(nil)

type mockFileStore struct {
	uploadFunc    func(ctx context.Context, accessToken, objectPath, contentType string, file io.Reader) (string, error)
	deleteFunc    func(ctx context.Context, accessToken, objectPath string) error
	uploadCalls   int
	deleteCalls   int
	deletedPaths  []string
	uploadedPaths []string
}

func (m *mockFileStore) ObjectPath(patientID, fileName string) string {
	return patientID + "/generated-object.png"
}

func (m *mockFileStore) Upload(ctx context.Context, accessToken, objectPath, contentType string, file io.Reader) (string, error) {
	m.uploadCalls++
	m.uploadedPaths = append(m.uploadedPaths, objectPath)
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, accessToken, objectPath, contentType, file)
	}
	return "https://platform.example/storage/v1/object/public/patient-documents/" + objectPath, nil
}

func (m *mockFileStore) Delete(ctx context.Context, accessToken, objectPath string) error {
	m.deleteCalls++
	m.deletedPaths = append(m.deletedPaths, objectPath)
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, accessToken, objectPath)
	}
	return nil
}

func (m *mockFileStore) ObjectPathFromURL(fileURL string) string {
	const prefix = "https://platform.example/storage/v1/object/public/patient-documents/"
	if !strings.HasPrefix(fileURL, prefix) {
		return ""
	}
	return strings.TrimPrefix(fileURL, prefix)
}

var _ FileStore = (*mockFileStore)(nil)

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeText(input string) string { return input }

func newTestService(api *mockDataAPI, store *mockFileStore) *Service {
	return NewService(api, store, passthroughSanitizer{}, nil, logger.Setup(io.Discard))
}

func TestService_Add_WithoutFile_CreatesRecordOnly(t *testing.T) {
	api := &mockDataAPI{}
	store := &mockFileStore{}
	svc := newTestService(api, store)

	created, err := svc.Add(context.Background(), "at-1", "user-1", &AddInput{
		Title:        "血液検査の結果",
		DocumentType: model.DocumentReport,
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if created.FileURL != "" {
		t.Errorf("expected no file URL, got %q", created.FileURL)
	}
	if store.uploadCalls != 0 {
		t.Errorf("expected no upload, got %d", store.uploadCalls)
	}
}

func TestService_Add_WithFile_UploadsBeforeRecordCreate(t *testing.T) {
	api := &mockDataAPI{}
	store := &mockFileStore{}
	svc := newTestService(api, store)

	var recordAtCreate *model.HistoryRecord
	api.createHistoryFunc = func(ctx context.Context, accessToken string, record *model.HistoryRecord) (*model.HistoryRecord, error) {
		if store.uploadCalls != 1 {
			t.Error("upload must complete before the record is created")
		}
		recordAtCreate = record
		return record, nil
	}

	created, err := svc.Add(context.Background(), "at-1", "user-1", &AddInput{
		Title:        "右膝レントゲン",
		DocumentType: model.DocumentXRay,
		FileName:     "xray.png",
		ContentType:  "image/png",
		File:         strings.NewReader("binary"),
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if recordAtCreate.FileURL == "" {
		t.Error("record must carry the uploaded file URL")
	}
	if created.FileName != "xray.png" {
		t.Errorf("expected original file name to be kept, got %q", created.FileName)
	}
}

func TestService_Add_InvalidDocumentType(t *testing.T) {
	svc := newTestService(&mockDataAPI{}, &mockFileStore{})

	_, err := svc.Add(context.Background(), "at-1", "user-1", &AddInput{
		Title:        "メモ",
		DocumentType: "memo",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidDocumentType {
		t.Errorf("expected INVALID_DOCUMENT_TYPE, got %v", err)
	}
}

func TestService_Add_MissingTitle_ValidationError(t *testing.T) {
	svc := newTestService(&mockDataAPI{}, &mockFileStore{})

	_, err := svc.Add(context.Background(), "at-1", "user-1", &AddInput{
		Title:        "   ",
		DocumentType: model.DocumentOther,
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationError {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestService_Add_RecordCreateFails_RemovesUploadedFile(t *testing.T) {
	api := &mockDataAPI{}
	store := &mockFileStore{}
	svc := newTestService(api, store)

	api.createHistoryFunc = func(ctx context.Context, accessToken string, record *model.HistoryRecord) (*model.HistoryRecord, error) {
		return nil, model.NewNetworkError("insert failed")
	}

	_, err := svc.Add(context.Background(), "at-1", "user-1", &AddInput{
		Title:        "処方箋",
		DocumentType: model.DocumentPrescription,
		FileName:     "rx.pdf",
		ContentType:  "application/pdf",
		File:         strings.NewReader("pdf"),
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if store.deleteCalls != 1 {
		t.Errorf("expected orphaned file cleanup, got %d delete calls", store.deleteCalls)
	}
	if len(store.deletedPaths) == 1 && store.deletedPaths[0] != store.uploadedPaths[0] {
		t.Errorf("cleaned path %q does not match uploaded path %q", store.deletedPaths[0], store.uploadedPaths[0])
	}
}

func TestService_Delete_RecordNotFound(t *testing.T) {
	api := &mockDataAPI{}
	svc := newTestService(api, &mockFileStore{})

	err := svc.Delete(context.Background(), "at-1", "user-1", "rec-missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDocumentNotFound {
		t.Errorf("expected DOCUMENT_NOT_FOUND, got %v", err)
	}
	if api.deleteCalls != 0 {
		t.Errorf("expected no record delete call, got %d", api.deleteCalls)
	}
}

func TestService_Delete_RemovesFileAndRecord(t *testing.T) {
	api := &mockDataAPI{}
	store := &mockFileStore{}
	svc := newTestService(api, store)

	api.findHistoryFunc = func(ctx context.Context, accessToken, patientID, recordID string) (*model.HistoryRecord, error) {
		return &model.HistoryRecord{
			ID:        recordID,
			PatientID: patientID,
			FileURL:   "https://platform.example/storage/v1/object/public/patient-documents/user-1/file.png",
		}, nil
	}

	if err := svc.Delete(context.Background(), "at-1", "user-1", "rec-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if store.deleteCalls != 1 {
		t.Errorf("expected 1 storage delete, got %d", store.deleteCalls)
	}
	if api.deleteCalls != 1 {
		t.Errorf("expected 1 record delete, got %d", api.deleteCalls)
	}
}

func TestService_Delete_StorageFailure_StillDeletesRecord(t *testing.T) {
	api := &mockDataAPI{}
	store := &mockFileStore{}
	svc := newTestService(api, store)

	api.findHistoryFunc = func(ctx context.Context, accessToken, patientID, recordID string) (*model.HistoryRecord, error) {
		return &model.HistoryRecord{
			ID:      recordID,
			FileURL: "https://platform.example/storage/v1/object/public/patient-documents/user-1/file.png",
		}, nil
	}
	store.deleteFunc = func(ctx context.Context, accessToken, objectPath string) error {
		return errors.New("storage unavailable")
	}

	// ストレージ削除の失敗はレコード削除を妨げない
	if err := svc.Delete(context.Background(), "at-1", "user-1", "rec-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if api.deleteCalls != 1 {
		t.Errorf("expected record delete despite storage failure, got %d", api.deleteCalls)
	}
}
