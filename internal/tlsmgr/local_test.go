package tlsmgr

import (
	"net"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestEnsureLocalServerCertIsStable(t *testing.T) {
	dir := t.TempDir()
	first, err := EnsureLocalServerCert(t.Context(), dir, "gate.internal", nil)
	if err != nil {
		t.Fatalf("EnsureLocalServerCert: %v", err)
	}
	for _, name := range []string{caCertFilename, caKeyFilename, serverCertFilename, serverKeyFilename} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Fatalf("%s mode = %v, want 0600", name, info.Mode().Perm())
		}
	}
	second, err := EnsureLocalServerCert(t.Context(), dir, "gate.internal", nil)
	if err != nil {
		t.Fatalf("EnsureLocalServerCert again: %v", err)
	}
	if first.Leaf.SerialNumber.Cmp(second.Leaf.SerialNumber) != 0 {
		t.Fatalf("valid server cert was reissued")
	}
	if !slices.Contains(first.Leaf.DNSNames, "gate.internal") {
		t.Fatalf("DNSNames = %v, want gate.internal", first.Leaf.DNSNames)
	}
}

func TestEnsureLocalServerCertRenewsFromSameCA(t *testing.T) {
	dir := t.TempDir()
	first, err := EnsureLocalServerCert(t.Context(), dir, "", nil)
	if err != nil {
		t.Fatalf("EnsureLocalServerCert: %v", err)
	}
	ca, err := LoadCA(dir)
	if err != nil {
		t.Fatalf("LoadCA: %v", err)
	}
	renewed, err := ensureLocalServerCert(dir, "", serverRenewBefore, time.Now().Add(3*365*24*time.Hour), ensureLogger(nil))
	if err != nil {
		t.Fatalf("ensureLocalServerCert: %v", err)
	}
	if renewed.Leaf.SerialNumber.Cmp(first.Leaf.SerialNumber) == 0 {
		t.Fatalf("expired server cert was not reissued")
	}
	if after, _ := LoadCA(dir); string(after) != string(ca) {
		t.Fatalf("renewal replaced the CA")
	}
	if renewed.Leaf.Issuer.CommonName != "Vakt Local CA" {
		t.Fatalf("issuer = %q", renewed.Leaf.Issuer.CommonName)
	}
}

func TestLocalCertSANs(t *testing.T) {
	dns, ips := sanForHostname("")
	if !slices.Equal(dns, []string{"localhost"}) || len(ips) != 2 {
		t.Fatalf("default SANs = %v %v", dns, ips)
	}
	dns, ips = sanForHostname("10.0.0.7")
	if len(dns) != 0 || len(ips) != 1 || !ips[0].Equal(net.ParseIP("10.0.0.7")) {
		t.Fatalf("ip SANs = %v %v", dns, ips)
	}
	dns, ips = sanForHostname(" gate.example ")
	if !slices.Equal(dns, []string{"gate.example"}) || len(ips) != 0 {
		t.Fatalf("hostname SANs = %v %v", dns, ips)
	}
}

func TestGenerateServerCertRequiresCA(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateServerCert(t.Context(), dir, "", nil); err == nil {
		t.Fatalf("expected error when CA is missing")
	}
	if err := GenerateCA(t.Context(), dir, nil); err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	if err := GenerateServerCert(t.Context(), dir, "", nil); err != nil {
		t.Fatalf("GenerateServerCert: %v", err)
	}
	if err := GenerateAll(t.Context(), dir, "", nil); err == nil {
		t.Fatalf("GenerateAll must refuse to overwrite existing assets")
	}
}
