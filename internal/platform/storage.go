package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/minato/clinicport/internal/model"
)

// StorageClient はプラットフォームのストレージAPIクライアント。
// 診療履歴の添付ファイル（レントゲン画像・検査レポート等）を保管する。
type StorageClient struct {
	client *Client
	bucket string
	logger *slog.Logger
}

// NewStorageClient はStorageClientを生成する。
func NewStorageClient(client *Client, bucket string, logger *slog.Logger) *StorageClient {
	return &StorageClient{client: client, bucket: bucket, logger: logger}
}

// ObjectPath は患者のアップロードファイルの保存先パスを生成する。
// 患者IDをプレフィックスとし、ファイル名はランダムなUUIDに差し替える
// （元のファイル名はレコード側のfile_nameで保持する）。
func (s *StorageClient) ObjectPath(patientID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return patientID + "/" + uuid.New().String() + ext
}

// Upload はファイルをストレージにアップロードし、公開URLを返す。
func (s *StorageClient) Upload(ctx context.Context, accessToken, objectPath, contentType string, file io.Reader) (string, error) {
	headers := map[string]string{"Content-Type": contentType}
	if contentType == "" {
		headers["Content-Type"] = "application/octet-stream"
	}

	body, status, err := s.client.do(ctx, http.MethodPost,
		"/storage/v1/object/"+s.bucket+"/"+escapeObjectPath(objectPath),
		accessToken, headers, file)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		reason := decodeError(body).reason()
		s.logger.Error("ストレージへのアップロードに失敗しました",
			slog.Int("status", status),
			slog.String("reason", reason),
		)
		return "", model.NewUploadFailedError(reason)
	}

	return s.PublicURL(objectPath), nil
}

// Delete はストレージ上のオブジェクトを削除する。
// 添付レコード削除時のベストエフォート処理として呼ばれ、失敗しても致命的ではない。
func (s *StorageClient) Delete(ctx context.Context, accessToken, objectPath string) error {
	body, status, err := s.client.do(ctx, http.MethodDelete,
		"/storage/v1/object/"+s.bucket+"/"+escapeObjectPath(objectPath),
		accessToken, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("failed to delete storage object: status %d: %s", status, decodeError(body).reason())
	}
	return nil
}

// PublicURL はオブジェクトの公開URLを返す。
func (s *StorageClient) PublicURL(objectPath string) string {
	return s.client.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + escapeObjectPath(objectPath)
}

// ObjectPathFromURL は公開URLから保存先パスを逆算する。
// このバケットのURLでない場合は空文字列を返す。
func (s *StorageClient) ObjectPathFromURL(fileURL string) string {
	prefix := s.client.baseURL + "/storage/v1/object/public/" + s.bucket + "/"
	if !strings.HasPrefix(fileURL, prefix) {
		return ""
	}
	escaped := strings.TrimPrefix(fileURL, prefix)
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return escaped
	}
	return unescaped
}

// escapeObjectPath はパス区切りを保ったままオブジェクトパスをエスケープする。
func escapeObjectPath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
