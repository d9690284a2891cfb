// Package history は診療履歴ドキュメントのユースケースを提供する。
package history

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/minato/clinicport/internal/model"
)

// DataAPI は診療履歴テーブルへのアクセスインターフェース。
type DataAPI interface {
	ListHistory(ctx context.Context, accessToken, patientID string) ([]model.HistoryRecord, error)
	CreateHistory(ctx context.Context, accessToken string, record *model.HistoryRecord) (*model.HistoryRecord, error)
	FindHistory(ctx context.Context, accessToken, patientID, recordID string) (*model.HistoryRecord, error)
	DeleteHistory(ctx context.Context, accessToken, recordID string) error
}

// FileStore は添付ファイルの保管インターフェース。
type FileStore interface {
	ObjectPath(patientID, fileName string) string
	Upload(ctx context.Context, accessToken, objectPath, contentType string, file io.Reader) (string, error)
	Delete(ctx context.Context, accessToken, objectPath string) error
	ObjectPathFromURL(fileURL string) string
}

// Sanitizer は自由入力テキストの無害化インターフェース。
type Sanitizer interface {
	SanitizeText(input string) string
}

// UploadRecorder はアップロードのメトリクス記録インターフェース。nil可。
type UploadRecorder interface {
	RecordUpload(success bool)
}

// Service は診療履歴ユースケースの実装。
type Service struct {
	api       DataAPI
	store     FileStore
	sanitizer Sanitizer
	metrics   UploadRecorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api DataAPI, store FileStore, sanitizer Sanitizer, metrics UploadRecorder, logger *slog.Logger) *Service {
	return &Service{api: api, store: store, sanitizer: sanitizer, metrics: metrics, logger: logger}
}

// AddInput は履歴追加フォームの入力内容を表す。
// Fileがnilの場合は添付ファイルなしのレコードとして登録する。
type AddInput struct {
	Title        string
	Description  string
	DocumentType model.DocumentType
	FileName     string
	ContentType  string
	File         io.Reader
}

// List は患者の診療履歴一覧を返す。
func (s *Service) List(ctx context.Context, accessToken, patientID string) ([]model.HistoryRecord, error) {
	return s.api.ListHistory(ctx, accessToken, patientID)
}

// Add は診療履歴レコードを登録する。添付ファイルがある場合は先にストレージへ
// アップロードし、その公開URLを持つレコードを作成する。レコード作成に失敗した
// 場合はアップロード済みファイルをベストエフォートで削除する。
func (s *Service) Add(ctx context.Context, accessToken, patientID string, input *AddInput) (*model.HistoryRecord, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, model.NewValidationError("タイトルを入力してください")
	}
	if !model.ValidDocumentType(input.DocumentType) {
		return nil, model.NewInvalidDocumentTypeError(string(input.DocumentType))
	}

	record := &model.HistoryRecord{
		PatientID:    patientID,
		Title:        s.sanitizer.SanitizeText(input.Title),
		Description:  s.sanitizer.SanitizeText(input.Description),
		DocumentType: input.DocumentType,
	}

	var objectPath string
	if input.File != nil {
		objectPath = s.store.ObjectPath(patientID, input.FileName)
		fileURL, err := s.store.Upload(ctx, accessToken, objectPath, input.ContentType, input.File)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordUpload(false)
			}
			return nil, err
		}
		record.FileURL = fileURL
		record.FileName = input.FileName
	}

	created, err := s.api.CreateHistory(ctx, accessToken, record)
	if err != nil {
		if objectPath != "" {
			if delErr := s.store.Delete(ctx, accessToken, objectPath); delErr != nil {
				s.logger.Warn("孤児ファイルの削除に失敗しました",
					slog.String("object_path", objectPath),
					slog.String("error", delErr.Error()),
				)
			}
		}
		if s.metrics != nil && objectPath != "" {
			s.metrics.RecordUpload(false)
		}
		return nil, err
	}

	if s.metrics != nil && objectPath != "" {
		s.metrics.RecordUpload(true)
	}
	s.logger.Info("診療履歴を登録しました",
		slog.String("patient_id", patientID),
		slog.String("document_type", string(created.DocumentType)),
		slog.Bool("has_file", objectPath != ""),
	)
	return created, nil
}

// Delete は診療履歴レコードを削除する。レコードが本人のものであることを確認した
// うえで、添付ファイルがあればベストエフォートで削除してからレコードを削除する。
func (s *Service) Delete(ctx context.Context, accessToken, patientID, recordID string) error {
	record, err := s.api.FindHistory(ctx, accessToken, patientID, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return model.NewDocumentNotFoundError(recordID)
	}

	if record.FileURL != "" {
		if objectPath := s.store.ObjectPathFromURL(record.FileURL); objectPath != "" {
			if delErr := s.store.Delete(ctx, accessToken, objectPath); delErr != nil {
				s.logger.Warn("添付ファイルの削除に失敗しました",
					slog.String("record_id", recordID),
					slog.String("error", delErr.Error()),
				)
			}
		}
	}

	return s.api.DeleteHistory(ctx, accessToken, recordID)
}
