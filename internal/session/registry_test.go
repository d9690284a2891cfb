package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/minato/clinicport/internal/logger"
)

// mockFactory はテスト用のGatewayFactory。生成したGatewayを数える。
type mockFactory struct {
	created int
}

func (f *mockFactory) NewGateway(portalSessionID string) Gateway {
	f.created++
	return newMockGateway()
}

var _ GatewayFactory = (*mockFactory)(nil)

func TestRegistry_GetOrCreate_ReturnsSameManagerForSameID(t *testing.T) {
	factory := &mockFactory{}
	registry := NewRegistry(factory, time.Hour, logger.Setup(io.Discard))
	defer registry.closeAll()

	ctx := context.Background()
	m1, err := registry.GetOrCreate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	m2, err := registry.GetOrCreate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}

	if m1 != m2 {
		t.Error("expected same manager instance for same portal session ID")
	}
	if factory.created != 1 {
		t.Errorf("expected 1 gateway created, got %d", factory.created)
	}
}

func TestRegistry_GetOrCreate_SeparatesSessions(t *testing.T) {
	factory := &mockFactory{}
	registry := NewRegistry(factory, time.Hour, logger.Setup(io.Discard))
	defer registry.closeAll()

	ctx := context.Background()
	m1, _ := registry.GetOrCreate(ctx, "sess-1")
	m2, _ := registry.GetOrCreate(ctx, "sess-2")

	if m1 == m2 {
		t.Error("expected distinct managers for distinct portal session IDs")
	}
	if registry.Len() != 2 {
		t.Errorf("expected 2 managers, got %d", registry.Len())
	}
}

func TestRegistry_Remove_DropsManager(t *testing.T) {
	factory := &mockFactory{}
	registry := NewRegistry(factory, time.Hour, logger.Setup(io.Discard))
	defer registry.closeAll()

	ctx := context.Background()
	m1, _ := registry.GetOrCreate(ctx, "sess-1")
	registry.Remove("sess-1")

	if registry.Len() != 0 {
		t.Errorf("expected 0 managers after removal, got %d", registry.Len())
	}

	m2, _ := registry.GetOrCreate(ctx, "sess-1")
	if m1 == m2 {
		t.Error("expected a fresh manager after removal")
	}
}

func TestRegistry_Cleanup_RemovesIdleManagers(t *testing.T) {
	factory := &mockFactory{}
	registry := NewRegistry(factory, 10*time.Millisecond, logger.Setup(io.Discard))
	defer registry.closeAll()

	ctx := context.Background()
	if _, err := registry.GetOrCreate(ctx, "sess-idle"); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	registry.cleanup()

	if registry.Len() != 0 {
		t.Errorf("expected idle manager to be reclaimed, got %d remaining", registry.Len())
	}
}

func TestRegistry_Cleanup_KeepsActiveManagers(t *testing.T) {
	factory := &mockFactory{}
	registry := NewRegistry(factory, time.Hour, logger.Setup(io.Discard))
	defer registry.closeAll()

	ctx := context.Background()
	if _, err := registry.GetOrCreate(ctx, "sess-active"); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}

	registry.cleanup()

	if registry.Len() != 1 {
		t.Errorf("expected active manager to survive cleanup, got %d", registry.Len())
	}
}
