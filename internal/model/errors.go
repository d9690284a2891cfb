package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, booking, document, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeNotAuthenticated       = "NOT_AUTHENTICATED"
	ErrCodeValidationError        = "VALIDATION_ERROR"
	ErrCodeNetworkError           = "NETWORK_ERROR"
	ErrCodeProfileNotFound        = "PROFILE_NOT_FOUND"
	ErrCodeInvalidDocumentType    = "INVALID_DOCUMENT_TYPE"
	ErrCodeDocumentNotFound       = "DOCUMENT_NOT_FOUND"
	ErrCodeUploadFailed           = "UPLOAD_FAILED"
	ErrCodeInvalidAppointment     = "INVALID_APPOINTMENT"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認し、再度お試しください。",
	}
}

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からサインインするか、別のメールアドレスをご利用ください。",
	}
}

// NewNotAuthenticatedError は未認証操作エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "この操作にはログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationError,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を修正して再度お試しください。",
	}
}

// NewNetworkError はプラットフォームとの通信失敗エラーを生成する。
func NewNetworkError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkError,
		Message:  fmt.Sprintf("サーバーとの通信に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProfileNotFoundError はプロフィール未登録エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。解決しない場合はクリニックにお問い合わせください。",
	}
}

// NewInvalidDocumentTypeError はドキュメント種別不正エラーを生成する。
func NewInvalidDocumentTypeError(docType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDocumentType,
		Message:  fmt.Sprintf("無効なドキュメント種別です: %s", docType),
		Category: "document",
		Action:   "種別には xray、report、prescription、other のいずれかを指定してください。",
	}
}

// NewDocumentNotFoundError は診療履歴レコード未検出エラーを生成する。
func NewDocumentNotFoundError(recordID string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("指定された診療履歴が見つかりません: %s", recordID),
		Category: "document",
		Action:   "履歴一覧を再読み込みして確認してください。",
	}
}

// NewUploadFailedError はファイルアップロード失敗エラーを生成する。
func NewUploadFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("ファイルのアップロードに失敗しました: %s", reason),
		Category: "document",
		Action:   "ファイルサイズと形式を確認し、再度お試しください。",
	}
}

// NewInvalidAppointmentError は予約内容不正エラーを生成する。
func NewInvalidAppointmentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAppointment,
		Message:  fmt.Sprintf("予約内容に誤りがあります: %s", reason),
		Category: "booking",
		Action:   "予約フォームの入力内容を確認して再度お試しください。",
	}
}
