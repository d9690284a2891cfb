package repository

import (
	"testing"
	"time"

	"github.com/minato/clinicport/internal/model"
)

// PostgresPortalSessionRepoはPortalSessionRepositoryインターフェースを満たすことを検証
func TestPostgresPortalSessionRepo_ImplementsInterface(t *testing.T) {
	var _ PortalSessionRepository = (*PostgresPortalSessionRepo)(nil)
}

// NewPostgresPortalSessionRepoが正しく初期化されることを検証
func TestNewPostgresPortalSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresPortalSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// PortalSessionモデルのフィールドが正しく構築されることを検証
func TestPostgresPortalSessionRepo_SessionModel_Fields(t *testing.T) {
	now := time.Now()
	session := &model.PortalSession{
		ID:           "portal-sess-1",
		IdentityID:   "user-1",
		RefreshToken: "refresh-token-value",
		ExpiresAt:    now.Add(7 * 24 * time.Hour),
		CreatedAt:    now,
	}

	if session.ID != "portal-sess-1" {
		t.Errorf("session.ID = %q, want %q", session.ID, "portal-sess-1")
	}
	if session.IdentityID != "user-1" {
		t.Errorf("session.IdentityID = %q, want %q", session.IdentityID, "user-1")
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		t.Error("expires_at should be after created_at")
	}
}
