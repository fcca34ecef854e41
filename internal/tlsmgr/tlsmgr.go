package tlsmgr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
	"pkt.systems/pslog"
)

// Mode selects where the gate's server certificate comes from.
type Mode string

const (
	// ModeAuto issues the certificate from a local CA kept in Config.Dir.
	ModeAuto Mode = "auto"
	// ModeBundle serves a certificate and key read from PEM files.
	ModeBundle Mode = "bundle"
	// ModeACME obtains the certificate over TLS-ALPN-01.
	ModeACME Mode = "acme"
)

// ParseMode normalizes a configured mode name. The empty string is allowed
// and left for ResolveMode to decide.
func ParseMode(s string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch mode {
	case "", ModeAuto, ModeBundle, ModeACME:
		return mode, nil
	}
	return "", fmt.Errorf("unknown tls mode %q (want auto, bundle or acme)", s)
}

// Config describes how the gate terminates TLS.
type Config struct {
	Mode        Mode
	BundleFiles []string
	Hostname    string
	Dir         string
	CacheDir    string
	// ACMEEmail is registered as the ACME account contact.
	ACMEEmail string
	// RenewBefore is how close to expiry an auto certificate is reissued.
	// Zero means 30 days.
	RenewBefore time.Duration
	// Now overrides the clock used for renewal decisions.
	Now func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) renewBefore() time.Duration {
	if c.RenewBefore > 0 {
		return c.RenewBefore
	}
	return serverRenewBefore
}

// ResolveMode picks bundle mode when bundle files are given without a mode
// and auto mode otherwise.
func ResolveMode(cfg Config) (Mode, error) {
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return "", err
	}
	if mode != "" {
		return mode, nil
	}
	if len(cfg.BundleFiles) > 0 {
		return ModeBundle, nil
	}
	return ModeAuto, nil
}

// BuildServerTLSConfig returns the gate's listener TLS config.
func BuildServerTLSConfig(ctx context.Context, cfg Config, logger pslog.Logger) (*tls.Config, error) {
	mode, err := ResolveMode(cfg)
	if err != nil {
		return nil, err
	}
	logger = ensureLogger(logger)
	switch mode {
	case ModeBundle:
		return bundleServerConfig(cfg, logger)
	case ModeACME:
		return acmeServerConfig(cfg, logger)
	default:
		return autoServerConfig(cfg, logger)
	}
}

func bundleServerConfig(cfg Config, logger pslog.Logger) (*tls.Config, error) {
	if len(cfg.BundleFiles) == 0 {
		return nil, fmt.Errorf("tls bundle mode requires at least one bundle file")
	}
	cert, err := LoadBundle(cfg.BundleFiles)
	if err != nil {
		return nil, err
	}
	if cert.Leaf != nil {
		if left := cert.Leaf.NotAfter.Sub(cfg.now()); left < cfg.renewBefore() {
			logger.Warn("tls bundle certificate expires soon", "not_after", cert.Leaf.NotAfter, "left", left.Round(time.Hour))
		}
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func acmeServerConfig(cfg Config, logger pslog.Logger) (*tls.Config, error) {
	if cfg.Hostname == "" {
		return nil, fmt.Errorf("acme mode requires --tls-hostname")
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("acme mode requires tls cache dir")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
		return nil, err
	}
	manager := &autocert.Manager{
		Prompt:      autocert.AcceptTOS,
		Cache:       autocert.DirCache(cfg.CacheDir),
		HostPolicy:  autocert.HostWhitelist(cfg.Hostname),
		Email:       cfg.ACMEEmail,
		RenewBefore: cfg.RenewBefore,
	}
	logger.Info("acme tls enabled", "hostname", cfg.Hostname, "cache_dir", cfg.CacheDir)
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: manager.GetCertificate,
		NextProtos:     []string{acme.ALPNProto, "h2", "http/1.1"},
	}, nil
}

func autoServerConfig(cfg Config, logger pslog.Logger) (*tls.Config, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("auto tls mode requires tls dir")
	}
	src := &localCertSource{cfg: cfg, logger: logger}
	if _, err := src.current(); err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: src.GetCertificate,
	}, nil
}

// localCertSource serves the auto-mode certificate and reissues it from the
// local CA once it is within the renewal window.
type localCertSource struct {
	cfg    Config
	logger pslog.Logger

	mu   sync.Mutex
	cert *tls.Certificate
}

// GetCertificate implements tls.Config.GetCertificate.
func (s *localCertSource) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return s.current()
}

func (s *localCertSource) current() (*tls.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.cfg.now()
	if s.cert != nil && now.Add(s.cfg.renewBefore()).Before(s.cert.Leaf.NotAfter) {
		return s.cert, nil
	}
	cert, err := ensureLocalServerCert(s.cfg.Dir, s.cfg.Hostname, s.cfg.renewBefore(), now, s.logger)
	if err == nil && cert.Leaf == nil {
		cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
	}
	if err != nil {
		if s.cert != nil {
			s.logger.Warn("server cert renewal failed; serving previous cert", "dir", s.cfg.Dir, "err", err)
			return s.cert, nil
		}
		return nil, err
	}
	s.cert = &cert
	return s.cert, nil
}

func ensureLogger(logger pslog.Logger) pslog.Logger {
	if logger != nil {
		return logger
	}
	return pslog.LoggerFromEnv()
}

func wrapMissing(err error, hint string) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", hint, err)
	}
	return err
}
