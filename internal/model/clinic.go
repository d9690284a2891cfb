package model

import "time"

// AppointmentStatus は予約の進行状態を表す。
type AppointmentStatus string

const (
	// AppointmentPending は患者が登録したばかりで未確定の予約。
	AppointmentPending AppointmentStatus = "pending"
	// AppointmentConfirmed はクリニック側が確定した予約。
	AppointmentConfirmed AppointmentStatus = "confirmed"
	// AppointmentCompleted は受診が完了した予約。
	AppointmentCompleted AppointmentStatus = "completed"
	// AppointmentCancelled はキャンセルされた予約。
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Doctor はクリニックに所属する医師を表す。
// doctorsテーブルの読み取り専用レコード。
type Doctor struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	Specialization  string    `json:"specialization"`
	Qualification   string    `json:"qualification"`
	ExperienceYears int       `json:"experience_years"`
	ImageURL        string    `json:"image_url,omitempty"`
	AvailableDays   []string  `json:"available_days"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClinicService はクリニックが提供する診療サービスを表す。
// servicesテーブルの読み取り専用レコード。
type ClinicService struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	CreatedAt   time.Time `json:"created_at"`
}

// Appointment は患者の診療予約を表す。
// DoctorとServiceは一覧取得時にプラットフォーム側で埋め込まれる。
type Appointment struct {
	ID              string            `json:"id"`
	PatientID       string            `json:"patient_id"`
	DoctorID        string            `json:"doctor_id"`
	ServiceID       string            `json:"service_id,omitempty"`
	AppointmentDate string            `json:"appointment_date"`
	AppointmentTime string            `json:"appointment_time"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Doctor          *Doctor           `json:"doctor,omitempty"`
	Service         *ClinicService    `json:"service,omitempty"`
}

// DocumentType は診療履歴ドキュメントの種別を表す。
type DocumentType string

const (
	// DocumentXRay はレントゲン画像。
	DocumentXRay DocumentType = "xray"
	// DocumentReport は検査レポート。
	DocumentReport DocumentType = "report"
	// DocumentPrescription は処方箋。
	DocumentPrescription DocumentType = "prescription"
	// DocumentOther はその他のドキュメント。
	DocumentOther DocumentType = "other"
)

// ValidDocumentType はドキュメント種別が定義済みの値かどうかを返す。
func ValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentXRay, DocumentReport, DocumentPrescription, DocumentOther:
		return true
	default:
		return false
	}
}

// HistoryRecord は患者の診療履歴レコードを表す。
// 添付ファイルはプラットフォームのストレージに保存され、URLのみを保持する。
type HistoryRecord struct {
	ID           string       `json:"id"`
	PatientID    string       `json:"patient_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	DocumentType DocumentType `json:"document_type"`
	FileURL      string       `json:"file_url,omitempty"`
	FileName     string       `json:"file_name,omitempty"`
	UploadDate   time.Time    `json:"upload_date"`
}

// NewsItem はホームページに表示するクリニックからのお知らせ記事を表す。
// 外部RSSフィードから取得され、ローカルには保持しない。
type NewsItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
