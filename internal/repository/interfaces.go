// Package repository はローカルデータ永続化のインターフェースを定義する。
// ローカルDBが保持するのはポータルセッション（リフレッシュトークンの保管）のみ。
package repository

import (
	"context"

	"github.com/minato/clinicport/internal/model"
)

// PortalSessionRepository はポータルセッションの永続化インターフェース。
type PortalSessionRepository interface {
	// Upsert はポータルセッションを作成または更新する。
	// 同一IDのセッションが存在する場合はリフレッシュトークンと有効期限を上書きする
	// （トークンローテーション対応）。
	Upsert(ctx context.Context, session *model.PortalSession) error

	// FindByID は指定IDのポータルセッションを取得する。
	// 期限切れまたは未登録の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PortalSession, error)

	// DeleteByID は指定IDのポータルセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByIdentityID は指定Identityの全ポータルセッションを削除する。
	DeleteByIdentityID(ctx context.Context, identityID string) error
}
