package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// GatewayFactory はポータルセッションごとのGatewayを生成する。
type GatewayFactory interface {
	// NewGateway は指定ポータルセッションIDに紐づくGatewayを生成する。
	NewGateway(portalSessionID string) Gateway
}

// Registry はポータルセッションIDごとのManagerを保持する。
// 一定期間操作のないManagerはバックグラウンドで回収される。
type Registry struct {
	factory GatewayFactory
	logger  *slog.Logger
	idleTTL time.Duration

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry はRegistryを生成する。
func NewRegistry(factory GatewayFactory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		factory:  factory,
		logger:   logger,
		idleTTL:  idleTTL,
		managers: make(map[string]*Manager),
	}
}

// GetOrCreate は指定ポータルセッションIDのManagerを返す。
// 未登録の場合は新しいManagerを生成してInitializeを実行する。
func (r *Registry) GetOrCreate(ctx context.Context, portalSessionID string) (*Manager, error) {
	r.mu.Lock()
	manager, ok := r.managers[portalSessionID]
	if !ok {
		manager = NewManager(r.factory.NewGateway(portalSessionID), r.logger)
		r.managers[portalSessionID] = manager
	}
	r.mu.Unlock()

	// Initializeは冪等なため、既存Managerに対する再呼び出しは何もしない
	if err := manager.Initialize(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}

// Remove は指定ポータルセッションIDのManagerを破棄する。
// サインアウト時にブラウザセッションとの紐づけを解消するために呼ばれる。
func (r *Registry) Remove(portalSessionID string) {
	r.mu.Lock()
	manager, ok := r.managers[portalSessionID]
	if ok {
		delete(r.managers, portalSessionID)
	}
	r.mu.Unlock()

	if ok {
		manager.Close()
	}
}

// Len は保持中のManager数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// StartCleanupLoop はアイドル状態のManagerを定期的に回収するループを開始する。
// ctxのキャンセルで停止する。
func (r *Registry) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.closeAll()
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup はidleTTLを超えて操作のないManagerを回収する。
func (r *Registry) cleanup() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Manager
	for id, manager := range r.managers {
		if manager.LastActive().Before(cutoff) {
			expired = append(expired, manager)
			delete(r.managers, id)
		}
	}
	remaining := len(r.managers)
	r.mu.Unlock()

	for _, manager := range expired {
		manager.Close()
	}

	if len(expired) > 0 {
		r.logger.Debug("アイドルセッションを回収しました",
			slog.Int("closed", len(expired)),
			slog.Int("remaining", remaining),
		)
	}
}

// closeAll は保持中のすべてのManagerを停止する。
func (r *Registry) closeAll() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, manager := range r.managers {
		managers = append(managers, manager)
	}
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()

	for _, manager := range managers {
		manager.Close()
	}
}
