package vakt

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/vakt/internal/gate"
	"pkt.systems/vakt/internal/tlsmgr"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestServeTLSWithLocalCA(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Listen = freeAddr(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ServeOptions{Config: cfg})
	}()

	endpoint := fmt.Sprintf("https://%s%s", cfg.Server.Listen, cfg.Server.BasePath)
	copts := testClientOptions(cfg, endpoint)

	// The server generates the local CA on start; wait until it answers.
	deadline := time.Now().Add(10 * time.Second)
	for {
		client, err := tlsmgr.NewHTTPClient(cfg.Server.TLS.Dir, time.Second)
		if err == nil {
			resp, err := client.Get(endpoint + "/health")
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					break
				}
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy")
		}
		time.Sleep(50 * time.Millisecond)
	}

	state := loginTestUser(t, copts)
	if !state.Authenticated() {
		t.Fatalf("expected a session over TLS")
	}
	if _, err := Status(t.Context(), copts); err != nil {
		t.Fatalf("Status: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("Serve did not stop")
	}

	// Sessions survive a restart through state.json.
	if _, err := os.Stat(filepath.Join(cfg.Server.DataDir, "state.json")); err != nil {
		t.Fatalf("state.json not written: %v", err)
	}
	store, err := gate.LoadStore(cfg.Server.DataDir)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("persisted sessions = %d, want 1", store.Len())
	}
}

func TestNewGateHandlerDropsOrphanedSessions(t *testing.T) {
	cfg := testConfig(t)
	firstCtx, stopFirst := context.WithCancel(t.Context())
	handler, err := NewGateHandler(firstCtx, cfg, nil)
	if err != nil {
		t.Fatalf("NewGateHandler: %v", err)
	}
	srv := httptest.NewServer(handler)
	loginTestUser(t, testClientOptions(cfg, srv.URL))
	srv.Close()
	stopFirst()

	if err := UsersDelete(cfg.Server.UsersFile, gate.DefaultTestUsername); err != nil {
		t.Fatalf("UsersDelete: %v", err)
	}
	startTestGate(t, cfg)
	store, err := gate.LoadStore(cfg.Server.DataDir)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("orphaned sessions = %d, want 0", store.Len())
	}
}

func TestNewGateHandlerRequiresDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.DataDir = ""
	if _, err := NewGateHandler(t.Context(), cfg, nil); err == nil {
		t.Fatalf("expected error without data dir")
	}
}
