package session

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonvoice/server/domain/entities"
)

func newTestRegistry() *Registry {
	return NewRegistry("test prompt", zap.NewNop())
}

func TestCreateAndGet(t *testing.T) {
	registry := newTestRegistry()

	created := registry.Create("client-1")
	if created.ID != "client-1" {
		t.Errorf("Expected id client-1, got %s", created.ID)
	}

	got, ok := registry.Get("client-1")
	if !ok {
		t.Fatal("Expected session to be found")
	}
	if got != created {
		t.Error("Expected the same session instance")
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", registry.Count())
	}
}

func TestGetAbsent(t *testing.T) {
	registry := newTestRegistry()

	if _, ok := registry.Get("nobody"); ok {
		t.Error("Expected absent id to miss")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	registry := newTestRegistry()
	registry.Create("client-1")

	registry.Remove("client-1")
	registry.Remove("client-1")

	if registry.Count() != 0 {
		t.Errorf("Expected empty registry, got %d sessions", registry.Count())
	}
}

func TestTransplantPreservesConversation(t *testing.T) {
	registry := newTestRegistry()
	old := registry.Create("old-id")
	for i := 0; i < 5; i++ {
		old.AppendTurn(entities.RoleUser, fmt.Sprintf("turn %d", i))
	}
	oldCount := old.ReconnectionCount

	restored, preserved := registry.Transplant("old-id", "new-id")
	if !preserved {
		t.Fatal("Expected conversation preserved")
	}
	if restored.HistoryLen() != 6 {
		t.Errorf("Expected system turn plus 5 turns, got %d", restored.HistoryLen())
	}
	if restored.ReconnectionCount != oldCount+1 {
		t.Errorf("Expected reconnection count %d, got %d", oldCount+1, restored.ReconnectionCount)
	}

	if _, ok := registry.Get("old-id"); ok {
		t.Error("Old id must be removed after transplant")
	}
	if got, ok := registry.Get("new-id"); !ok || got != restored {
		t.Error("New id must resolve to the restored session")
	}
}

func TestTransplantUnknownPrevious(t *testing.T) {
	registry := newTestRegistry()

	sess, preserved := registry.Transplant("never-existed", "new-id")
	if preserved {
		t.Error("Unknown previous id must not report preservation")
	}
	if sess.ReconnectionCount != 1 {
		t.Errorf("Expected reconnection count 1, got %d", sess.ReconnectionCount)
	}
	if sess.HistoryLen() != 1 {
		t.Errorf("Expected fresh history, got %d turns", sess.HistoryLen())
	}
	if _, ok := registry.Get("new-id"); !ok {
		t.Error("Fresh session must be registered under the new id")
	}
}

func TestExpireIdle(t *testing.T) {
	registry := newTestRegistry()
	registry.Create("stale")
	registry.Create("fresh")
	busy := registry.Create("busy")
	busy.BeginProcessing()

	// Only "fresh" has recent activity.
	time.Sleep(10 * time.Millisecond)
	fresh, _ := registry.Get("fresh")
	fresh.Touch()

	removed := registry.ExpireIdle(5 * time.Millisecond)
	if removed != 1 {
		t.Errorf("Expected 1 expired session, got %d", removed)
	}
	if _, ok := registry.Get("stale"); ok {
		t.Error("Stale session should be expired")
	}
	if _, ok := registry.Get("fresh"); !ok {
		t.Error("Fresh session must survive")
	}
	if _, ok := registry.Get("busy"); !ok {
		t.Error("Session mid-pipeline must survive even when idle")
	}
}
