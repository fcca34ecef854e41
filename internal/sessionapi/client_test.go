package sessionapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pkt.systems/vakt/internal/gate"
	"pkt.systems/vakt/internal/protocol"
)

type testEnv struct {
	srv    *httptest.Server
	gate   *gate.HTTPServer
	client *Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := gate.NewUserStore()
	if _, err := gate.SeedTestUser(users); err != nil {
		t.Fatalf("SeedTestUser: %v", err)
	}
	gs := gate.NewHTTPServer(gate.NewStore(), users, gate.NewAuthenticator(users), nil, gate.NewHub(nil))
	srv := httptest.NewServer(gs.Handler())
	t.Cleanup(srv.Close)
	client, err := New(Options{Endpoint: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{srv: srv, gate: gs, client: client}
}

func (e *testEnv) login(t *testing.T) *Client {
	t.Helper()
	code, err := gate.TOTPCode(gate.DefaultTestTOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("TOTPCode: %v", err)
	}
	resp, err := e.client.Login(t.Context(), gate.DefaultTestUsername, gate.DefaultTestPassword, code)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Username != gate.DefaultTestUsername || resp.MaxInactiveSeconds != 300 {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	return e.client.WithToken(resp.SessionToken)
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"https://gate.example:12843/":  "https://gate.example:12843",
		"wss://gate.example/base":      "https://gate.example/base",
		"ws://localhost:8080":          "http://localhost:8080",
		"HTTP://localhost:8080/?x=1#f": "http://localhost:8080",
	}
	for in, want := range cases {
		got, err := NormalizeEndpoint(in)
		if err != nil {
			t.Fatalf("NormalizeEndpoint(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "gate.example", "ftp://gate.example"} {
		if _, err := NormalizeEndpoint(bad); err == nil {
			t.Fatalf("NormalizeEndpoint(%q) should fail", bad)
		}
	}
}

func TestWebsocketURL(t *testing.T) {
	got, err := websocketURL("https://gate.example/base")
	if err != nil || got != "wss://gate.example/base" {
		t.Fatalf("websocketURL = %q, %v", got, err)
	}
	got, err = websocketURL("http://localhost:1")
	if err != nil || got != "ws://localhost:1" {
		t.Fatalf("websocketURL = %q, %v", got, err)
	}
}

func TestLoginStatusExtendLogout(t *testing.T) {
	env := newTestEnv(t)
	if err := env.client.Health(t.Context()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	client := env.login(t)
	ctx := t.Context()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Authenticated || status.MaxInactiveInterval != 300 {
		t.Fatalf("unexpected status: %+v", status)
	}

	ext, err := client.Extend(ctx)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if ext.Status != protocol.ExtendSuccess {
		t.Fatalf("extend status = %q", ext.Status)
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := client.Status(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Status after logout err = %v, want ErrUnauthenticated", err)
	}
	if _, err := client.Extend(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Extend after logout err = %v, want ErrUnauthenticated", err)
	}
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.client.Login(t.Context(), gate.DefaultTestUsername, "wrong", "000000")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}

func TestLoginThrottledCarriesRetryAfter(t *testing.T) {
	env := newTestEnv(t)
	env.gate.SetLoginRate(0.001, 1)
	ctx := t.Context()
	_, _ = env.client.Login(ctx, gate.DefaultTestUsername, "wrong", "000000")
	_, err := env.client.Login(ctx, gate.DefaultTestUsername, "wrong", "000000")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want 429", err)
	}
	if se.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %s, want > 0", se.RetryAfter)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("429 must not map to ErrUnauthenticated")
	}
}

func TestCallsWithoutTokenAreUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	if _, err := env.client.Status(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Status err = %v", err)
	}
	if err := env.client.Logout(ctx); err != nil {
		t.Fatalf("Logout without token: %v", err)
	}
	if err := env.client.Watch(ctx, func(protocol.Envelope) {}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Watch err = %v", err)
	}
}

func TestSessionsAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	first := env.login(t)
	second := env.login(t)
	ctx := t.Context()

	sessions, err := first.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	var other string
	for _, s := range sessions {
		if !s.Current {
			other = s.ID
		}
	}
	if other == "" {
		t.Fatalf("expected a non-current session: %+v", sessions)
	}
	if err := first.RevokeSession(ctx, other); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := second.Status(ctx); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("revoked session status err = %v", err)
	}
	if err := first.RevokeSession(ctx, other); !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("second revoke err = %v, want 404", err)
	}
	if err := first.RevokeSession(ctx, " "); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestWatchDeliversUntilTerminal(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	got := make(chan protocol.Envelope, 8)
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, func(env protocol.Envelope) { got <- env })
	}()

	select {
	case env := <-got:
		if env.Type != protocol.MessageStatus {
			t.Fatalf("first message = %s, want status", env.Type)
		}
	case <-ctx.Done():
		t.Fatalf("no status message")
	}

	if _, err := client.Extend(ctx); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	select {
	case env := <-got:
		if env.Type != protocol.MessageExtended {
			t.Fatalf("message = %s, want extended", env.Type)
		}
	case <-ctx.Done():
		t.Fatalf("no extended message")
	}

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v, want nil", err)
		}
	case <-ctx.Done():
		t.Fatalf("Watch did not return after logout")
	}
	last := <-got
	if last.Type != protocol.MessageLoggedOut {
		t.Fatalf("last message = %s, want logged_out", last.Type)
	}
}

func TestWatchRejectedHandshake(t *testing.T) {
	env := newTestEnv(t)
	client := env.client.WithToken("bogus")
	err := client.Watch(t.Context(), func(protocol.Envelope) {})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestWatchCancelled(t *testing.T) {
	env := newTestEnv(t)
	client := env.login(t)
	ctx, cancel := context.WithCancel(t.Context())
	first := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, func(protocol.Envelope) {
			select {
			case first <- struct{}{}:
			default:
			}
		})
	}()
	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatalf("no first message")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}
