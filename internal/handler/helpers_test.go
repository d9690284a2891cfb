package handler

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/minato/clinicport/internal/logger"
	"github.com/minato/clinicport/internal/middleware"
	"github.com/minato/clinicport/internal/model"
	"github.com/minato/clinicport/internal/session"
)

// fakeGateway はハンドラーテスト用のsession.Gateway実装。
// 固定のIdentityとProfileで認証が成功する。
type fakeGateway struct {
	identity      model.Identity
	profile       *model.Profile
	signInErr     error
	signUpErr     error
	updateResult  *model.Profile
	updateErr     error
	signOutCalls  int
	events        chan session.AuthEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		identity: model.Identity{ID: "user-1", Email: "a@b.com"},
		profile:  &model.Profile{ID: "user-1", FullName: "山田 太郎", Email: "a@b.com"},
		events:   make(chan session.AuthEvent, 4),
	}
}

func (g *fakeGateway) Restore(ctx context.Context) (*model.Identity, error) { return nil, nil }

func (g *fakeGateway) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	if g.signInErr != nil {
		return nil, g.signInErr
	}
	identity := g.identity
	identity.Email = email
	return &identity, nil
}

func (g *fakeGateway) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	if g.signUpErr != nil {
		return nil, g.signUpErr
	}
	identity := g.identity
	identity.Email = email
	return &identity, nil
}

func (g *fakeGateway) SignOut(ctx context.Context) error {
	g.signOutCalls++
	return nil
}

func (g *fakeGateway) FetchProfile(ctx context.Context, identityID string) (*model.Profile, error) {
	return g.profile, nil
}

func (g *fakeGateway) CreateProfile(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	return profile, nil
}

func (g *fakeGateway) UpdateProfile(ctx context.Context, identityID string, update *model.ProfileUpdate) (*model.Profile, error) {
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	if g.updateResult != nil {
		return g.updateResult, nil
	}
	return g.profile, nil
}

func (g *fakeGateway) AccessToken() string              { return "test-access-token" }
func (g *fakeGateway) Events() <-chan session.AuthEvent { return g.events }
func (g *fakeGateway) Close()                           {}

var _ session.Gateway = (*fakeGateway)(nil)

// newAnonymousManager は初期化済み（anonymous）のManagerを生成する。
func newAnonymousManager(t *testing.T, gateway *fakeGateway) *session.Manager {
	t.Helper()
	manager := session.NewManager(gateway, logger.Setup(io.Discard))
	t.Cleanup(manager.Close)
	if err := manager.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize manager: %v", err)
	}
	return manager
}

// newAuthenticatedManager はサインイン済みのManagerを生成する。
func newAuthenticatedManager(t *testing.T, gateway *fakeGateway) *session.Manager {
	t.Helper()
	manager := newAnonymousManager(t, gateway)
	if err := manager.SignIn(context.Background(), "a@b.com", "secret"); err != nil {
		t.Fatalf("failed to sign in: %v", err)
	}
	return manager
}

// withManager はリクエストにセッションマネージャとポータルセッションIDを注入する。
func withManager(r *http.Request, manager *session.Manager) *http.Request {
	ctx := middleware.ContextWithManager(r.Context(), manager)
	ctx = middleware.ContextWithPortalSessionID(ctx, "portal-sess-1")
	return r.WithContext(ctx)
}
