package platform

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/minato/clinicport/internal/model"
)

// RestClient はプラットフォームのテーブルAPIクライアント。
// プロフィール・医師・サービス・予約・診療履歴の各テーブルを操作する。
// 行レベルのアクセス制御はプラットフォーム側で患者のアクセストークンに基づいて行われる。
type RestClient struct {
	client *Client
	logger *slog.Logger
}

// NewRestClient はRestClientを生成する。
func NewRestClient(client *Client, logger *slog.Logger) *RestClient {
	return &RestClient{client: client, logger: logger}
}

// returnRepresentation は書き込み系リクエストで作成・更新後の行を返させるヘッダー。
var returnRepresentation = map[string]string{"Prefer": "return=representation"}

// FetchProfile は指定Identityのプロフィールを取得する。未登録の場合はnilを返す。
func (r *RestClient) FetchProfile(ctx context.Context, accessToken, identityID string) (*model.Profile, error) {
	path := "/rest/v1/profiles?select=*&id=eq." + url.QueryEscape(identityID)
	var profiles []model.Profile
	if err := r.getJSON(ctx, accessToken, path, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// CreateProfile はプロフィールを新規作成し、作成された行を返す。
func (r *RestClient) CreateProfile(ctx context.Context, accessToken string, profile *model.Profile) (*model.Profile, error) {
	body, status, err := r.client.doJSON(ctx, http.MethodPost, "/rest/v1/profiles", accessToken, cloneHeaders(returnRepresentation), profile)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, r.tableError("create profile", status, body)
	}
	return decodeSingleProfile(body)
}

// UpdateProfile はプロフィールを部分更新し、更新後の行を返す。
// 対象行が存在しない場合はPROFILE_NOT_FOUNDを返す。
func (r *RestClient) UpdateProfile(ctx context.Context, accessToken, identityID string, update *model.ProfileUpdate) (*model.Profile, error) {
	path := "/rest/v1/profiles?id=eq." + url.QueryEscape(identityID)
	body, status, err := r.client.doJSON(ctx, http.MethodPatch, path, accessToken, cloneHeaders(returnRepresentation), update)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, r.tableError("update profile", status, body)
	}

	var profiles []model.Profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, model.NewNetworkError("プロフィールレスポンスの解析に失敗しました")
	}
	if len(profiles) == 0 {
		return nil, model.NewProfileNotFoundError()
	}
	return &profiles[0], nil
}

// ListDoctors は医師の一覧を名前順で取得する。
func (r *RestClient) ListDoctors(ctx context.Context, accessToken string) ([]model.Doctor, error) {
	var doctors []model.Doctor
	if err := r.getJSON(ctx, accessToken, "/rest/v1/doctors?select=*&order=full_name.asc", &doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}

// ListServices は診療サービスの一覧を名前順で取得する。
func (r *RestClient) ListServices(ctx context.Context, accessToken string) ([]model.ClinicService, error) {
	var services []model.ClinicService
	if err := r.getJSON(ctx, accessToken, "/rest/v1/services?select=*&order=name.asc", &services); err != nil {
		return nil, err
	}
	return services, nil
}

// ListAppointments は指定患者の予約一覧を日付降順で取得する。
// 医師とサービスの情報は埋め込みで同時取得する。
func (r *RestClient) ListAppointments(ctx context.Context, accessToken, patientID string) ([]model.Appointment, error) {
	path := "/rest/v1/appointments?select=*,doctor:doctors(*),service:services(*)" +
		"&patient_id=eq." + url.QueryEscape(patientID) +
		"&order=appointment_date.desc"
	var appointments []model.Appointment
	if err := r.getJSON(ctx, accessToken, path, &appointments); err != nil {
		return nil, err
	}
	return appointments, nil
}

// CreateAppointment は予約を新規登録し、作成された行を返す。
func (r *RestClient) CreateAppointment(ctx context.Context, accessToken string, appointment *model.Appointment) (*model.Appointment, error) {
	body, status, err := r.client.doJSON(ctx, http.MethodPost, "/rest/v1/appointments", accessToken, cloneHeaders(returnRepresentation), appointment)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, r.tableError("create appointment", status, body)
	}

	var created []model.Appointment
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		return nil, model.NewNetworkError("予約レスポンスの解析に失敗しました")
	}
	return &created[0], nil
}

// ListHistory は指定患者の診療履歴を登録日時降順で取得する。
func (r *RestClient) ListHistory(ctx context.Context, accessToken, patientID string) ([]model.HistoryRecord, error) {
	path := "/rest/v1/patient_history?select=*" +
		"&patient_id=eq." + url.QueryEscape(patientID) +
		"&order=upload_date.desc"
	var records []model.HistoryRecord
	if err := r.getJSON(ctx, accessToken, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CreateHistory は診療履歴レコードを新規登録し、作成された行を返す。
func (r *RestClient) CreateHistory(ctx context.Context, accessToken string, record *model.HistoryRecord) (*model.HistoryRecord, error) {
	body, status, err := r.client.doJSON(ctx, http.MethodPost, "/rest/v1/patient_history", accessToken, cloneHeaders(returnRepresentation), record)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, r.tableError("create history", status, body)
	}

	var created []model.HistoryRecord
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		return nil, model.NewNetworkError("診療履歴レスポンスの解析に失敗しました")
	}
	return &created[0], nil
}

// FindHistory は指定患者の診療履歴レコードを1件取得する。見つからない場合はnilを返す。
func (r *RestClient) FindHistory(ctx context.Context, accessToken, patientID, recordID string) (*model.HistoryRecord, error) {
	path := "/rest/v1/patient_history?select=*" +
		"&id=eq." + url.QueryEscape(recordID) +
		"&patient_id=eq." + url.QueryEscape(patientID)
	var records []model.HistoryRecord
	if err := r.getJSON(ctx, accessToken, path, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// DeleteHistory は診療履歴レコードを削除する。
func (r *RestClient) DeleteHistory(ctx context.Context, accessToken, recordID string) error {
	path := "/rest/v1/patient_history?id=eq." + url.QueryEscape(recordID)
	body, status, err := r.client.doJSON(ctx, http.MethodDelete, path, accessToken, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return r.tableError("delete history", status, body)
	}
	return nil
}

// getJSON はGETリクエストを実行して結果をデコードする。
func (r *RestClient) getJSON(ctx context.Context, accessToken, path string, out interface{}) error {
	body, status, err := r.client.do(ctx, http.MethodGet, path, accessToken, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return r.tableError("query", status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.NewNetworkError("テーブルAPIレスポンスの解析に失敗しました")
	}
	return nil
}

// tableError はテーブルAPIのエラーステータスをAPIErrorにマッピングする。
func (r *RestClient) tableError(operation string, status int, body []byte) error {
	reason := decodeError(body).reason()
	r.logger.Error("テーブルAPIがエラーを返しました",
		slog.String("operation", operation),
		slog.Int("status", status),
		slog.String("reason", reason),
	)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return model.NewNotAuthenticatedError()
	}
	if status >= 400 && status < 500 {
		return model.NewValidationError(reason)
	}
	return model.NewNetworkError("データサービスでエラーが発生しました")
}

// decodeSingleProfile は行配列レスポンスから先頭のプロフィールを取り出す。
func decodeSingleProfile(body []byte) (*model.Profile, error) {
	var profiles []model.Profile
	if err := json.Unmarshal(body, &profiles); err != nil || len(profiles) == 0 {
		return nil, model.NewNetworkError("プロフィールレスポンスの解析に失敗しました")
	}
	return &profiles[0], nil
}

// cloneHeaders はヘッダーマップのコピーを返す。
// doJSONが渡されたマップへContent-Typeを追記するため、共有マップを直接渡さない。
func cloneHeaders(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
