package tlsmgr

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewHTTPClientTrustsLocalCA(t *testing.T) {
	dir := t.TempDir()
	tlsCfg, err := BuildServerTLSConfig(t.Context(), Config{Mode: ModeAuto, Dir: dir}, nil)
	if err != nil {
		t.Fatalf("BuildServerTLSConfig: %v", err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	srv.TLS = tlsCfg
	srv.StartTLS()
	defer srv.Close()

	client, err := NewHTTPClient(dir, 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
}

func TestClientTLSConfigWithoutCA(t *testing.T) {
	cfg, err := ClientTLSConfig(t.TempDir())
	if err != nil {
		t.Fatalf("ClientTLSConfig: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatalf("expected root pool")
	}
}

func TestClientTLSConfigRejectsBadCA(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, caCertFilename), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ClientTLSConfig(dir); err == nil {
		t.Fatalf("expected error for unparsable CA")
	}
}

func TestServerCertNeedsRenewal(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateAll(t.Context(), dir, "localhost", nil); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	renew, err := serverCertNeedsRenewal(dir, time.Now(), serverRenewBefore)
	if err != nil {
		t.Fatalf("serverCertNeedsRenewal: %v", err)
	}
	if renew {
		t.Fatalf("fresh cert should not need renewal")
	}
	renew, err = serverCertNeedsRenewal(dir, time.Now().Add(20*365*24*time.Hour), serverRenewBefore)
	if err != nil {
		t.Fatalf("serverCertNeedsRenewal: %v", err)
	}
	if !renew {
		t.Fatalf("expected renewal far in the future")
	}
}

func TestLocalhostCertCoversLoopback(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateAll(t.Context(), dir, "localhost", nil); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, serverCertFilename))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	block, _ := pem.Decode(data)
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cert.VerifyHostname("127.0.0.1"); err != nil {
		t.Fatalf("VerifyHostname 127.0.0.1: %v", err)
	}
	if err := cert.VerifyHostname("localhost"); err != nil {
		t.Fatalf("VerifyHostname localhost: %v", err)
	}
}

func TestExportCAWritesPEM(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateCA(t.Context(), dir, nil); err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	var buf bytes.Buffer
	if err := ExportCA(dir, &buf); err != nil {
		t.Fatalf("ExportCA: %v", err)
	}
	block, _ := pem.Decode(buf.Bytes())
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("exported data is not a PEM certificate")
	}
	if err := ExportCA(t.TempDir(), &buf); err == nil {
		t.Fatalf("expected error for missing CA")
	}
}
