package session

import "github.com/minato/clinicport/internal/model"

// State はセッションのライフサイクル状態を表す。
type State string

const (
	// StateUninitialized は初期化前の状態。Initialize呼び出しで遷移が始まる。
	StateUninitialized State = "uninitialized"
	// StateRestoring は保存済みセッションの復元を試行中の状態。
	StateRestoring State = "restoring"
	// StateAnonymous は未認証の状態。
	StateAnonymous State = "anonymous"
	// StateAuthenticated は認証済みの状態。IdentityとProfileが利用可能。
	StateAuthenticated State = "authenticated"
)

// AuthEventType はゲートウェイから通知される認証イベントの種別。
type AuthEventType string

const (
	// EventSignedIn はサインイン完了イベント。
	EventSignedIn AuthEventType = "signed_in"
	// EventSignedOut はサインアウトイベント。トークン失効による強制サインアウトを含む。
	EventSignedOut AuthEventType = "signed_out"
	// EventTokenRefreshed はアクセストークンの更新イベント。認証状態は変化しない。
	EventTokenRefreshed AuthEventType = "token_refreshed"
)

// AuthEvent はゲートウェイが発行する認証イベント。
type AuthEvent struct {
	Type     AuthEventType
	Identity *model.Identity
}

// Snapshot はある時点のセッション状態の読み取り専用コピー。
type Snapshot struct {
	State    State          `json:"state"`
	Identity *model.Identity `json:"identity,omitempty"`
	Profile  *model.Profile  `json:"profile,omitempty"`
}

// Observer はセッション状態の変化を受け取るコールバック。
// Managerのイベントループから同期的に、登録順で呼び出される。
type Observer func(Snapshot)
