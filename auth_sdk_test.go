package vakt

import (
	"errors"
	"testing"
)

func TestLoginStatusExtendLogout(t *testing.T) {
	cfg := testConfig(t)
	srv := startTestGate(t, cfg)
	copts := testClientOptions(cfg, srv.URL)

	state := loginTestUser(t, copts)
	if !state.Authenticated() || state.Endpoint != srv.URL || state.MaxInactiveSeconds != 300 {
		t.Fatalf("unexpected state: %+v", state)
	}
	stored, err := LoadAuth(cfg.Client.AuthFile)
	if err != nil {
		t.Fatalf("LoadAuth: %v", err)
	}
	if stored.SessionToken != state.SessionToken {
		t.Fatalf("stored token mismatch")
	}

	// Later commands find the endpoint in the stored login.
	noEndpoint := testClientOptions(cfg, "")
	status, err := Status(t.Context(), noEndpoint)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.SessionID != state.SessionID || status.Username != state.Username {
		t.Fatalf("unexpected status: %+v", status)
	}
	if _, err := Extend(t.Context(), noEndpoint); err != nil {
		t.Fatalf("Extend: %v", err)
	}

	if err := Logout(t.Context(), noEndpoint); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	stored, err = LoadAuth(cfg.Client.AuthFile)
	if err != nil {
		t.Fatalf("LoadAuth: %v", err)
	}
	if stored.Authenticated() || stored.Endpoint != srv.URL {
		t.Fatalf("logout should keep only the endpoint: %+v", stored)
	}
	if _, err := Status(t.Context(), noEndpoint); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Status after logout err = %v", err)
	}
	if err := Logout(t.Context(), noEndpoint); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
}

func TestLoginRequiresInputs(t *testing.T) {
	if _, err := Login(t.Context(), LoginOptions{}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
	if _, err := Login(t.Context(), LoginOptions{ClientOptions: ClientOptions{Endpoint: "https://localhost:1"}}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestRejectedTokenIsForgotten(t *testing.T) {
	cfg := testConfig(t)
	srv := startTestGate(t, cfg)
	copts := testClientOptions(cfg, srv.URL)
	state := loginTestUser(t, copts)
	state.SessionToken = "stale"
	if err := SaveAuth(cfg.Client.AuthFile, state); err != nil {
		t.Fatalf("SaveAuth: %v", err)
	}
	if _, err := Status(t.Context(), copts); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	stored, err := LoadAuth(cfg.Client.AuthFile)
	if err != nil {
		t.Fatalf("LoadAuth: %v", err)
	}
	if stored.Authenticated() {
		t.Fatalf("stale token should be cleared")
	}
}

func TestOpenClientRejectsOtherEndpoint(t *testing.T) {
	cfg := testConfig(t)
	srv := startTestGate(t, cfg)
	loginTestUser(t, testClientOptions(cfg, srv.URL))
	_, _, err := OpenClient(testClientOptions(cfg, "https://elsewhere.example"))
	if err == nil {
		t.Fatalf("expected endpoint mismatch error")
	}
}

func TestOpenClientWithoutLogin(t *testing.T) {
	cfg := testConfig(t)
	if _, _, err := OpenClient(testClientOptions(cfg, "")); err == nil {
		t.Fatalf("expected error without endpoint or login")
	}
	client, state, err := OpenClient(testClientOptions(cfg, "wss://gate.example/v1/"))
	if err != nil {
		t.Fatalf("OpenClient: %v", err)
	}
	if state.Authenticated() || client.Endpoint() != "https://gate.example/v1" {
		t.Fatalf("unexpected client %q state %+v", client.Endpoint(), state)
	}
}

func TestSessionsAndRevoke(t *testing.T) {
	cfg := testConfig(t)
	srv := startTestGate(t, cfg)
	first := testClientOptions(cfg, srv.URL)
	second := first
	second.AuthPath = cfg.Client.AuthFile + ".second"

	firstState := loginTestUser(t, first)
	secondState := loginTestUser(t, second)

	sessions, err := Sessions(t.Context(), first)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	for _, s := range sessions {
		if s.Current != (s.ID == firstState.SessionID) {
			t.Fatalf("current flag wrong for %+v", s)
		}
	}

	if err := RevokeSession(t.Context(), first, secondState.SessionID); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := Status(t.Context(), second); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("revoked session status err = %v", err)
	}

	if err := RevokeSession(t.Context(), first, firstState.SessionID); err != nil {
		t.Fatalf("revoke own session: %v", err)
	}
	stored, err := LoadAuth(first.AuthPath)
	if err != nil {
		t.Fatalf("LoadAuth: %v", err)
	}
	if stored.Authenticated() {
		t.Fatalf("revoking the current session should forget the token")
	}
}
