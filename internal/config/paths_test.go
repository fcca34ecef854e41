package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathsFollowHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(HomeEnv, "")

	dir := filepath.Join(home, ".vakt")
	for name, tc := range map[string]struct{ got, want string }{
		"dir":    {DefaultConfigDir(), dir},
		"config": {DefaultConfigPath(), filepath.Join(dir, "config.yaml")},
		"auth":   {DefaultAuthPath(), filepath.Join(dir, "auth.json")},
		"log":    {DefaultLogPath(), filepath.Join(dir, "vakt.log")},
		"users":  {DefaultUsersPath(), filepath.Join(dir, "users.json")},
		"tls":    {DefaultTLSDir(), filepath.Join(dir, "tls")},
		"cache":  {DefaultTLSCacheDir(), filepath.Join(dir, "tls", "cache")},
	} {
		if tc.got != tc.want {
			t.Fatalf("%s path = %q, want %q", name, tc.got, tc.want)
		}
	}
}

func TestVaktHomeRelocatesPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(HomeEnv, "~/state/vakt/")

	want := filepath.Join(home, "state", "vakt")
	if got := DefaultConfigDir(); got != want {
		t.Fatalf("DefaultConfigDir() = %q, want %q", got, want)
	}
	if got := DefaultAuthPath(); got != filepath.Join(want, "auth.json") {
		t.Fatalf("DefaultAuthPath() = %q", got)
	}
	if got := DefaultConfig().Server.DataDir; got != want {
		t.Fatalf("Server.DataDir = %q, want %q", got, want)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cases := map[string]string{
		"~":              home,
		"~/auth.json":    filepath.Join(home, "auth.json"),
		"/etc/vakt.yaml": "/etc/vakt.yaml",
		"rel/path":       "rel/path",
		"~alice/x":       "~alice/x",
		"":               "",
	}
	for in, want := range cases {
		if got := ExpandPath(in); got != want {
			t.Fatalf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoaderExpandsHomeInPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(HomeEnv, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("client:\n  auth_file: ~/tokens/auth.json\nserver:\n  tls:\n    bundle:\n      - ~/certs/gate.pem\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(home, "tokens", "auth.json"); cfg.Client.AuthFile != want {
		t.Fatalf("Client.AuthFile = %q, want %q", cfg.Client.AuthFile, want)
	}
	if len(cfg.Server.TLS.Bundle) != 1 || cfg.Server.TLS.Bundle[0] != filepath.Join(home, "certs", "gate.pem") {
		t.Fatalf("Server.TLS.Bundle = %v", cfg.Server.TLS.Bundle)
	}
}
