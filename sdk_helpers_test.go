package vakt

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/vakt/internal/gate"
)

// testConfig returns a config rooted in a temp dir with the test user in
// its users file.
func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Server.DataDir = filepath.Join(dir, "data")
	cfg.Server.UsersFile = filepath.Join(dir, "users.json")
	cfg.Server.TLS.Dir = filepath.Join(dir, "tls")
	cfg.Server.TLS.CacheDir = filepath.Join(dir, "tls", "cache")
	cfg.Client.AuthFile = filepath.Join(dir, "auth.json")

	users := gate.NewUserStore()
	if _, err := gate.SeedTestUser(users); err != nil {
		t.Fatalf("SeedTestUser: %v", err)
	}
	if err := users.Save(cfg.Server.UsersFile); err != nil {
		t.Fatalf("Save users: %v", err)
	}
	return cfg
}

func startTestGate(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	handler, err := NewGateHandler(t.Context(), cfg, nil)
	if err != nil {
		t.Fatalf("NewGateHandler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testClientOptions(cfg Config, endpoint string) ClientOptions {
	return ClientOptions{
		Endpoint: endpoint,
		AuthPath: cfg.Client.AuthFile,
		TLSDir:   cfg.Server.TLS.Dir,
	}
}

func loginTestUser(t *testing.T, copts ClientOptions) AuthState {
	t.Helper()
	code, err := gate.TOTPCode(gate.DefaultTestTOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("TOTPCode: %v", err)
	}
	state, err := Login(t.Context(), LoginOptions{
		ClientOptions: copts,
		Username:      gate.DefaultTestUsername,
		Password:      gate.DefaultTestPassword,
		TOTP:          code,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return state
}
