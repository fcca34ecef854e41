package tlsmgr

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// LoadLocalCARoots loads the local CA cert into the provided pool (or a new one).
func LoadLocalCARoots(dir string, pool *x509.CertPool) (*x509.CertPool, error) {
	if pool == nil {
		systemPool, err := x509.SystemCertPool()
		if err != nil || systemPool == nil {
			pool = x509.NewCertPool()
		} else {
			pool = systemPool
		}
	}
	certPath := filepath.Join(dir, caCertFilename)
	data, err := os.ReadFile(certPath)
	if err != nil {
		if os.IsNotExist(err) {
			return pool, nil
		}
		return nil, err
	}
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, fmt.Errorf("failed to parse ca cert")
	}
	return pool, nil
}

// ClientTLSConfig returns a client TLS config trusting the system roots plus
// the local CA in dir, if one has been generated.
func ClientTLSConfig(dir string) (*tls.Config, error) {
	pool, err := LoadLocalCARoots(dir, nil)
	if err != nil {
		return nil, err
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// NewHTTPClient returns an HTTP client using ClientTLSConfig(dir).
func NewHTTPClient(dir string, timeout time.Duration) (*http.Client, error) {
	tlsCfg, err := ClientTLSConfig(dir)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
