// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はホスティングプラットフォームが発行するユーザーハンドルを表す。
// 安定した一意のIDとメールアドレスのみを保持し、それ以外の個人情報はProfileが持つ。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile は認証済みIdentityに1対1で紐付く患者の個人情報レコードを表す。
// 正本はプラットフォームのprofilesテーブルにあり、ローカルには保持しない。
type Profile struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileUpdate はプロフィール更新の部分フィールドを表す。
// nilのフィールドは変更対象に含めない。
type ProfileUpdate struct {
	FullName    *string `json:"full_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
}

// IsEmpty は更新対象フィールドが1つもないかどうかを返す。
func (u ProfileUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Email == nil && u.PhoneNumber == nil && u.DateOfBirth == nil
}

// PortalSession はポータルのブラウザセッションを表す。
// プラットフォームのリフレッシュトークンを保管し、再訪時のセッション復元に使用する。
// 認証の正本はあくまでプラットフォーム側にあり、ここはトークンの保管庫に過ぎない。
type PortalSession struct {
	ID           string
	IdentityID   string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
