package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/minato/clinicport/internal/model"
)

// PostgresPortalSessionRepo はPostgreSQLを使用したポータルセッションリポジトリ。
type PostgresPortalSessionRepo struct {
	db *sql.DB
}

// NewPostgresPortalSessionRepo はPostgresPortalSessionRepoを生成する。
func NewPostgresPortalSessionRepo(db *sql.DB) *PostgresPortalSessionRepo {
	return &PostgresPortalSessionRepo{db: db}
}

// Upsert はポータルセッションを作成または更新する。
func (r *PostgresPortalSessionRepo) Upsert(ctx context.Context, session *model.PortalSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portal_sessions (id, identity_id, refresh_token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET identity_id = EXCLUDED.identity_id,
		     refresh_token = EXCLUDED.refresh_token,
		     expires_at = EXCLUDED.expires_at`,
		session.ID, session.IdentityID, session.RefreshToken, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert portal session: %w", err)
	}
	return nil
}

// FindByID は指定IDのポータルセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresPortalSessionRepo) FindByID(ctx context.Context, id string) (*model.PortalSession, error) {
	session := &model.PortalSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, identity_id, refresh_token, expires_at, created_at
		 FROM portal_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.IdentityID, &session.RefreshToken, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find portal session: %w", err)
	}

	return session, nil
}

// DeleteByID は指定IDのポータルセッションを削除する。
func (r *PostgresPortalSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM portal_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete portal session: %w", err)
	}
	return nil
}

// DeleteByIdentityID は指定Identityの全ポータルセッションを削除する。
func (r *PostgresPortalSessionRepo) DeleteByIdentityID(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM portal_sessions WHERE identity_id = $1`,
		identityID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete identity sessions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PortalSessionRepository = (*PostgresPortalSessionRepo)(nil)
