package gate

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestReloadUsersFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	now := time.Now().UTC()

	store := NewUserStore()
	store.Upsert(User{Username: "alice", PasswordHash: "old", TOTPSecret: "oldsecret", CreatedAt: now})
	if err := store.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	updated := NewUserStore()
	updated.Upsert(User{Username: "alice", PasswordHash: "new", TOTPSecret: "newsecret", CreatedAt: now})
	if err := updated.Save(path); err != nil {
		t.Fatalf("Save updated: %v", err)
	}
	if err := store.ReloadFromDisk(path); err != nil {
		t.Fatalf("ReloadFromDisk: %v", err)
	}
	reloaded, ok := store.Get("alice")
	if !ok || reloaded.PasswordHash != "new" || reloaded.TOTPSecret != "newsecret" {
		t.Fatalf("user fields not updated: %+v", reloaded)
	}
}

func TestUserWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	now := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)

	store := NewUserStore()
	store.Upsert(User{Username: "alice", PasswordHash: "old", TOTPSecret: "oldsecret", CreatedAt: now})
	if err := store.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	var reloads atomic.Int32
	if err := startUserWatch(t.Context(), path, store, nil, func() { reloads.Add(1) }, 10*time.Millisecond, 50*time.Millisecond); err != nil {
		t.Fatalf("startUserWatch: %v", err)
	}

	updated := NewUserStore()
	updated.Upsert(User{Username: "alice", PasswordHash: "new", TOTPSecret: "newsecret", CreatedAt: now})
	if err := updated.Save(path); err != nil {
		t.Fatalf("Save updated: %v", err)
	}
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("Chtimes updated: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loaded, ok := store.Get("alice")
		if ok && loaded.TOTPSecret == "newsecret" && reloads.Load() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected reload with updated totp secret")
}

func TestUserWatchRequiresPath(t *testing.T) {
	if err := StartUserWatch(t.Context(), "", NewUserStore(), nil, nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if err := StartUserWatch(t.Context(), "users.json", nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
