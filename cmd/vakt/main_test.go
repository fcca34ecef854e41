package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/vakt"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := NewRootCommand(vakt.NewLoader())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	logger := pslog.LoggerFromEnv(pslog.WithEnvWriter(&bytes.Buffer{}))
	err := root.ExecuteContext(pslog.ContextWithLogger(context.Background(), logger))
	return out.String(), err
}

func TestUsersCommands(t *testing.T) {
	users := filepath.Join(t.TempDir(), "users.json")

	out, err := runCLI(t, "users", "add", "alice", "--users-file", users)
	if err != nil {
		t.Fatalf("users add: %v", err)
	}
	for _, want := range []string{"username: alice", "password: ", "otpauth_url: otpauth://", "totp_qr:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("users add output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, "users", "add", "alice", "--users-file", users); err == nil || err.Error() != "user already exists" {
		t.Fatalf("duplicate add err = %v", err)
	}

	out, err = runCLI(t, "users", "list", "--users-file", users)
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	if !strings.Contains(out, `"alice"`) {
		t.Fatalf("users list output = %s", out)
	}

	if _, err := runCLI(t, "users", "delete", "alice", "--users-file", users); err != nil {
		t.Fatalf("users delete: %v", err)
	}
	if _, err := runCLI(t, "users", "delete", "alice", "--users-file", users); err == nil || err.Error() != "user not found" {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestTLSCommands(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")

	if _, err := runCLI(t, "tls", "new", "--dir", dir); err != nil {
		t.Fatalf("tls new: %v", err)
	}
	out, err := runCLI(t, "tls", "export", "--dir", dir)
	if err != nil {
		t.Fatalf("tls export: %v", err)
	}
	if !strings.HasPrefix(out, "-----BEGIN CERTIFICATE-----") {
		t.Fatalf("export output = %q", out)
	}
}

func TestStatusWithoutLogin(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "status",
		"--endpoint", "http://127.0.0.1:1",
		"--auth-file", filepath.Join(dir, "auth.json"),
		"--tls-dir", filepath.Join(dir, "tls"),
	)
	if err == nil {
		t.Fatalf("expected status without login to fail")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	root := NewRootCommand(vakt.NewLoader())
	for _, name := range []string{"login", "logout", "status", "extend", "sessions", "users", "serve", "tls", "bootstrap"} {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}
