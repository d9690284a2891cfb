package platform

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/minato/clinicport/internal/model"
	"github.com/minato/clinicport/internal/repository"
	"github.com/minato/clinicport/internal/session"
)

// SessionGateway はポータルセッション1つ分のsession.Gateway実装。
// トークンセッションの保持・リフレッシュトークンのローカル永続化・
// バックグラウンドでのトークン更新を担う。
type SessionGateway struct {
	auth   *AuthClient
	rest   *RestClient
	repo   repository.PortalSessionRepository
	logger *slog.Logger

	portalSessionID string
	sessionMaxAge   time.Duration
	refreshMargin   time.Duration

	mu      sync.RWMutex
	current *AuthSession

	events chan session.AuthEvent
	wake   chan struct{}
	quit   chan struct{}
	closed sync.Once
}

// newSessionGateway はSessionGatewayを生成し、リフレッシュループを開始する。
func newSessionGateway(factory *GatewayFactory, portalSessionID string) *SessionGateway {
	g := &SessionGateway{
		auth:            factory.auth,
		rest:            factory.rest,
		repo:            factory.repo,
		logger:          factory.logger,
		portalSessionID: portalSessionID,
		sessionMaxAge:   factory.sessionMaxAge,
		refreshMargin:   factory.refreshMargin,
		events:          make(chan session.AuthEvent, 16),
		wake:            make(chan struct{}, 1),
		quit:            make(chan struct{}),
	}
	go g.refreshLoop()
	return g
}

// Restore は保存済みリフレッシュトークンからセッションの復元を試行する。
// 保存済みセッションがない場合とトークンが失効済みの場合は (nil, nil) を返し、
// 通信エラーの場合のみエラーを返す。
func (g *SessionGateway) Restore(ctx context.Context) (*model.Identity, error) {
	g.mu.RLock()
	current := g.current
	g.mu.RUnlock()
	if current != nil {
		identity := current.Identity
		return &identity, nil
	}

	stored, err := g.repo.FindByID(ctx, g.portalSessionID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	authSession, err := g.auth.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		if apiErr, ok := err.(*model.APIError); ok && apiErr.Code == model.ErrCodeNotAuthenticated {
			// 失効済みトークンは「セッションなし」と同義。保存行も破棄する
			if delErr := g.repo.DeleteByID(ctx, g.portalSessionID); delErr != nil {
				g.logger.Warn("失効セッションの削除に失敗しました",
					slog.String("error", delErr.Error()),
				)
			}
			return nil, nil
		}
		return nil, err
	}

	if err := g.store(ctx, authSession); err != nil {
		return nil, err
	}
	identity := authSession.Identity
	return &identity, nil
}

// SignIn はパスワード認証を行い、取得したトークンセッションを保持する。
func (g *SessionGateway) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	authSession, err := g.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := g.store(ctx, authSession); err != nil {
		return nil, err
	}
	identity := authSession.Identity
	return &identity, nil
}

// SignUp は新規アカウントを登録し、取得したトークンセッションを保持する。
func (g *SessionGateway) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	authSession, err := g.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := g.store(ctx, authSession); err != nil {
		return nil, err
	}
	identity := authSession.Identity
	return &identity, nil
}

// SignOut はプラットフォーム側のトークンを無効化し、保持中のセッションと
// 保存済みリフレッシュトークンを破棄する。ローカルの破棄は無効化呼び出しの
// 成否に関わらず必ず行う。
func (g *SessionGateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	current := g.current
	g.current = nil
	g.mu.Unlock()

	if err := g.repo.DeleteByID(ctx, g.portalSessionID); err != nil {
		g.logger.Warn("ポータルセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	if current == nil {
		return nil
	}
	return g.auth.SignOut(ctx, current.AccessToken)
}

// FetchProfile はプロフィールを取得する。
func (g *SessionGateway) FetchProfile(ctx context.Context, identityID string) (*model.Profile, error) {
	return g.rest.FetchProfile(ctx, g.AccessToken(), identityID)
}

// CreateProfile はプロフィールを新規作成する。
func (g *SessionGateway) CreateProfile(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	return g.rest.CreateProfile(ctx, g.AccessToken(), profile)
}

// UpdateProfile はプロフィールを部分更新する。
func (g *SessionGateway) UpdateProfile(ctx context.Context, identityID string, update *model.ProfileUpdate) (*model.Profile, error) {
	return g.rest.UpdateProfile(ctx, g.AccessToken(), identityID, update)
}

// AccessToken は現在有効なアクセストークンを返す。未認証時は空文字列。
func (g *SessionGateway) AccessToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.current == nil {
		return ""
	}
	return g.current.AccessToken
}

// Events は認証イベントチャネルを返す。
func (g *SessionGateway) Events() <-chan session.AuthEvent {
	return g.events
}

// Close はリフレッシュループを停止する。
func (g *SessionGateway) Close() {
	g.closed.Do(func() {
		close(g.quit)
	})
}

// store はトークンセッションを保持し、リフレッシュトークンをローカルDBに永続化する。
func (g *SessionGateway) store(ctx context.Context, authSession *AuthSession) error {
	now := time.Now()
	err := g.repo.Upsert(ctx, &model.PortalSession{
		ID:           g.portalSessionID,
		IdentityID:   authSession.Identity.ID,
		RefreshToken: authSession.RefreshToken,
		ExpiresAt:    now.Add(g.sessionMaxAge),
		CreatedAt:    now,
	})
	if err != nil {
		g.logger.Error("ポータルセッションの保存に失敗しました",
			slog.String("error", err.Error()),
		)
		return model.NewNetworkError("セッションの保存に失敗しました")
	}

	g.mu.Lock()
	g.current = authSession
	g.mu.Unlock()

	// リフレッシュループに有効期限の再計算を促す
	select {
	case g.wake <- struct{}{}:
	default:
	}
	return nil
}

// refreshLoop はアクセストークンの有効期限が近づいたら自動的に更新する。
// 更新成功時はtoken_refreshedイベントを、リフレッシュトークンの失効時は
// signed_outイベントを発行する。
func (g *SessionGateway) refreshLoop() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		g.mu.RLock()
		current := g.current
		g.mu.RUnlock()

		if current == nil {
			// セッションが設定されるまで待機
			select {
			case <-g.wake:
				continue
			case <-g.quit:
				return
			}
		}

		wait := time.Until(current.ExpiresAt.Add(-g.refreshMargin))
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
			g.refresh()
		case <-g.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-g.quit:
			timer.Stop()
			return
		}
	}
}

// refresh はトークンを更新する。呼び出し時点のリフレッシュトークンを使用する。
func (g *SessionGateway) refresh() {
	g.mu.RLock()
	current := g.current
	g.mu.RUnlock()
	if current == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	authSession, err := g.auth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if apiErr, ok := err.(*model.APIError); ok && apiErr.Code == model.ErrCodeNotAuthenticated {
			g.logger.Info("リフレッシュトークンが失効したためセッションを終了します",
				slog.String("identity_id", current.Identity.ID),
			)
			g.mu.Lock()
			g.current = nil
			g.mu.Unlock()
			if delErr := g.repo.DeleteByID(ctx, g.portalSessionID); delErr != nil {
				g.logger.Warn("失効セッションの削除に失敗しました",
					slog.String("error", delErr.Error()),
				)
			}
			g.emit(session.AuthEvent{Type: session.EventSignedOut})
			return
		}

		// 一時的な通信障害は次の周期で再試行する
		g.logger.Warn("トークンの更新に失敗しました",
			slog.String("error", err.Error()),
		)
		g.mu.Lock()
		if g.current != nil {
			g.current.ExpiresAt = time.Now().Add(time.Minute)
		}
		g.mu.Unlock()
		return
	}

	if err := g.store(ctx, authSession); err != nil {
		g.logger.Warn("更新後トークンの保存に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	identity := authSession.Identity
	g.emit(session.AuthEvent{Type: session.EventTokenRefreshed, Identity: &identity})
}

// emit はイベントを発行する。発行順は維持される。
func (g *SessionGateway) emit(event session.AuthEvent) {
	select {
	case g.events <- event:
	case <-g.quit:
	}
}

// GatewayFactory はポータルセッションごとのSessionGatewayを生成する。
type GatewayFactory struct {
	auth          *AuthClient
	rest          *RestClient
	repo          repository.PortalSessionRepository
	logger        *slog.Logger
	sessionMaxAge time.Duration
	refreshMargin time.Duration
}

// NewGatewayFactory はGatewayFactoryを生成する。
func NewGatewayFactory(
	auth *AuthClient,
	rest *RestClient,
	repo repository.PortalSessionRepository,
	sessionMaxAge time.Duration,
	refreshMargin time.Duration,
	logger *slog.Logger,
) *GatewayFactory {
	return &GatewayFactory{
		auth:          auth,
		rest:          rest,
		repo:          repo,
		logger:        logger,
		sessionMaxAge: sessionMaxAge,
		refreshMargin: refreshMargin,
	}
}

// NewGateway は指定ポータルセッションIDに紐づくGatewayを生成する。
func (f *GatewayFactory) NewGateway(portalSessionID string) session.Gateway {
	return newSessionGateway(f, portalSessionID)
}

// compile-time interface checks
var (
	_ session.Gateway        = (*SessionGateway)(nil)
	_ session.GatewayFactory = (*GatewayFactory)(nil)
)
