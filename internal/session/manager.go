// Package session は認証セッションのライフサイクルを管理する。
// ポータルのブラウザセッションごとに1つのManagerが存在し、
// 「誰がログインしているか・そのプロフィールは何か」の唯一の正とな
// る状態コンテナとして動作する。
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minato/clinicport/internal/model"
)

// Gateway は外部プラットフォームとの認証・プロフィール操作のインターフェース。
type Gateway interface {
	// Restore は保存済みセッションの復元を試行する。
	// 保存済みセッションが存在しない場合は (nil, nil) を返す。
	Restore(ctx context.Context) (*model.Identity, error)

	// SignIn はメールアドレスとパスワードで認証する。
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)

	// SignUp は新規アカウントを登録する。
	SignUp(ctx context.Context, email, password string) (*model.Identity, error)

	// SignOut はプラットフォーム側のセッションを無効化する（ベストエフォート）。
	SignOut(ctx context.Context) error

	// FetchProfile は指定Identityのプロフィールを取得する。未登録の場合はnil。
	FetchProfile(ctx context.Context, identityID string) (*model.Profile, error)

	// CreateProfile はプロフィールを新規作成し、作成された行を返す。
	CreateProfile(ctx context.Context, profile *model.Profile) (*model.Profile, error)

	// UpdateProfile はプロフィールを部分更新し、サーバー確定後の行を返す。
	UpdateProfile(ctx context.Context, identityID string, update *model.ProfileUpdate) (*model.Profile, error)

	// AccessToken は現在有効なアクセストークンを返す。未認証時は空文字列。
	AccessToken() string

	// Events はプラットフォーム側の認証イベント（トークン更新・失効等）を
	// 発生順に配信するチャネルを返す。
	Events() <-chan AuthEvent

	// Close はゲートウェイの内部リソース（リフレッシュループ等）を停止する。
	Close()
}

// command はイベントループで直列実行される操作。
type command struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Manager はセッション状態機械の実装。
//
// すべての状態変更（明示的な操作とゲートウェイからの通知の両方）は
// 単一のイベントループ上で1件ずつ処理される。操作の実行中に別の書き込みが
// 割り込むことはなく、通知は到着順に、前の遷移が完了してから適用される。
type Manager struct {
	gateway Gateway
	logger  *slog.Logger

	mu        sync.RWMutex
	state     State
	identity  *model.Identity
	profile   *model.Profile
	observers []Observer

	initialized bool

	commands chan command
	quit     chan struct{}
	closed   sync.Once

	lastActive atomic.Int64
}

// NewManager はManagerを生成し、イベントループを開始する。
// 生成直後の状態はuninitializedで、Initializeの呼び出しで復元が始まる。
func NewManager(gateway Gateway, logger *slog.Logger) *Manager {
	m := &Manager{
		gateway:  gateway,
		logger:   logger,
		state:    StateUninitialized,
		commands: make(chan command, 16),
		quit:     make(chan struct{}),
	}
	m.touch()
	go m.run()
	return m
}

// run はコマンドとゲートウェイ通知を1件ずつ処理するイベントループ。
func (m *Manager) run() {
	events := m.gateway.Events()
	for {
		select {
		case cmd := <-m.commands:
			cmd.fn(context.Background())
			close(cmd.done)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.handleEvent(event)
		case <-m.quit:
			return
		}
	}
}

// exec は操作をイベントループに投入して完了を待つ。
func (m *Manager) exec(ctx context.Context, fn func(ctx context.Context)) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case m.commands <- cmd:
	case <-m.quit:
		return model.NewNotAuthenticatedError()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-m.quit:
		return model.NewNotAuthenticatedError()
	}
}

// Initialize はセッションの復元を開始する。冪等であり、2回目以降の呼び出しは
// 何もしない。restoringに遷移したうえで保存済みセッションの復元を試行し、
// 成功すればauthenticated、保存済みセッションがない場合と復元に失敗した場合は
// anonymousへ遷移する。復元失敗はエラーとして返さない。
func (m *Manager) Initialize(ctx context.Context) error {
	m.touch()
	return m.exec(ctx, func(ctx context.Context) {
		if m.initialized {
			return
		}
		m.initialized = true

		m.transition(StateRestoring, nil, nil)

		identity, err := m.gateway.Restore(ctx)
		if err != nil {
			m.logger.Warn("セッションの復元に失敗しました",
				slog.String("reason", "restore_failed"),
				slog.String("error", err.Error()),
			)
			m.transition(StateAnonymous, nil, nil)
			return
		}
		if identity == nil {
			m.transition(StateAnonymous, nil, nil)
			return
		}

		profile := m.fetchProfile(ctx, identity.ID)
		m.transition(StateAuthenticated, identity, profile)
	})
}

// SignIn はメールアドレスとパスワードでサインインする。
// 外部呼び出しが解決するまで状態は変化しない（楽観的ログインはしない）。
// 成功時はauthenticatedへ遷移し、プロフィールを1回取得する。
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.touch()
	var opErr error
	err := m.exec(ctx, func(ctx context.Context) {
		identity, err := m.gateway.SignIn(ctx, email, password)
		if err != nil {
			opErr = err
			return
		}

		profile := m.fetchProfile(ctx, identity.ID)
		m.transition(StateAuthenticated, identity, profile)
	})
	if err != nil {
		return err
	}
	return opErr
}

// SignUp は新規アカウントを登録してサインインする。
// プラットフォーム側のアカウント作成後、authenticatedへ遷移する前に
// プロフィールレコードを作成する。authenticatedを観測した呼び出し元は
// 直ちに有効なプロフィールを取得できることが保証される。
// プロフィール作成に失敗した場合はベストエフォートでサインアウトし、
// anonymousのままエラーを返す。
func (m *Manager) SignUp(ctx context.Context, email, password, fullName string) error {
	m.touch()
	var opErr error
	err := m.exec(ctx, func(ctx context.Context) {
		identity, err := m.gateway.SignUp(ctx, email, password)
		if err != nil {
			opErr = err
			return
		}

		profile, err := m.gateway.CreateProfile(ctx, &model.Profile{
			ID:       identity.ID,
			FullName: fullName,
			Email:    email,
		})
		if err != nil {
			m.logger.Error("プロフィールの作成に失敗しました",
				slog.String("identity_id", identity.ID),
				slog.String("error", err.Error()),
			)
			if signOutErr := m.gateway.SignOut(ctx); signOutErr != nil {
				m.logger.Warn("登録失敗後のサインアウトに失敗しました",
					slog.String("error", signOutErr.Error()),
				)
			}
			opErr = err
			return
		}

		m.transition(StateAuthenticated, identity, profile)
	})
	if err != nil {
		return err
	}
	return opErr
}

// SignOut はサインアウトする。プラットフォーム側の無効化呼び出しが失敗しても
// ローカルの状態は必ずanonymousへ遷移する。ユーザーの離脱意図はネットワーク
// 障害に関わらずこの端末上で尊重される。
func (m *Manager) SignOut(ctx context.Context) error {
	m.touch()
	return m.exec(ctx, func(ctx context.Context) {
		if err := m.gateway.SignOut(ctx); err != nil {
			m.logger.Warn("プラットフォーム側のサインアウトに失敗しました",
				slog.String("error", err.Error()),
			)
		}
		m.transition(StateAnonymous, nil, nil)
	})
}

// UpdateProfile はプロフィールを部分更新する。authenticated状態でのみ許可され、
// それ以外の場合はネットワーク呼び出しを行わずNOT_AUTHENTICATEDを返す。
// 成功時はローカルのプロフィールをサーバー確定後のレコードで置き換える
// （送信したフィールドのマージではなく全置換。サーバー側のデフォルト値や
// タイムスタンプとの乖離を防ぐため）。
func (m *Manager) UpdateProfile(ctx context.Context, update *model.ProfileUpdate) error {
	m.touch()
	var opErr error
	err := m.exec(ctx, func(ctx context.Context) {
		if m.state != StateAuthenticated {
			opErr = model.NewNotAuthenticatedError()
			return
		}

		profile, err := m.gateway.UpdateProfile(ctx, m.identity.ID, update)
		if err != nil {
			opErr = err
			return
		}

		m.transition(StateAuthenticated, m.identity, profile)
	})
	if err != nil {
		return err
	}
	return opErr
}

// handleEvent はゲートウェイからの認証イベントを適用する。
func (m *Manager) handleEvent(event AuthEvent) {
	switch event.Type {
	case EventSignedOut:
		// トークン失効・他端末からの無効化。ローカル状態を破棄する。
		if m.currentState() != StateAnonymous {
			m.logger.Info("プラットフォーム側でセッションが終了しました")
			m.transition(StateAnonymous, nil, nil)
		}
	case EventSignedIn:
		if event.Identity != nil && m.currentState() != StateAuthenticated {
			profile := m.fetchProfile(context.Background(), event.Identity.ID)
			m.transition(StateAuthenticated, event.Identity, profile)
		}
	case EventTokenRefreshed:
		// 認証状態は変化しない。新しいトークンはゲートウェイ側で保持済み。
	}
}

// fetchProfile はプロフィールを取得する。失敗しても認証自体は成立させるため、
// ログに記録してnilを返す。
func (m *Manager) fetchProfile(ctx context.Context, identityID string) *model.Profile {
	profile, err := m.gateway.FetchProfile(ctx, identityID)
	if err != nil {
		m.logger.Warn("プロフィールの取得に失敗しました",
			slog.String("identity_id", identityID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return profile
}

// transition は状態を更新し、登録順でオブザーバーに通知する。
// イベントループからのみ呼ばれる。
func (m *Manager) transition(state State, identity *model.Identity, profile *model.Profile) {
	m.mu.Lock()
	m.state = state
	m.identity = identity
	m.profile = profile
	observers := m.observers
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}
}

// Subscribe は状態変化のオブザーバーを登録する。
// オブザーバーはイベントループから同期的に、登録順で呼び出される。
func (m *Manager) Subscribe(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, observer)
}

// Snapshot は現在のセッション状態の読み取り専用コピーを返す。
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// snapshotLocked はロック保持中にスナップショットを生成する。
func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:    m.state,
		Identity: m.identity,
		Profile:  m.profile,
	}
}

// currentState は現在の状態を返す。
func (m *Manager) currentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AccessToken は現在有効なアクセストークンを返す。未認証時は空文字列。
func (m *Manager) AccessToken() string {
	return m.gateway.AccessToken()
}

// touch は最終利用時刻を更新する。Registryのアイドル回収で使用される。
func (m *Manager) touch() {
	m.lastActive.Store(time.Now().UnixNano())
}

// LastActive は最後に操作が行われた時刻を返す。
func (m *Manager) LastActive() time.Time {
	return time.Unix(0, m.lastActive.Load())
}

// Close はイベントループとゲートウェイを停止する。
func (m *Manager) Close() {
	m.closed.Do(func() {
		close(m.quit)
		m.gateway.Close()
	})
}
