package vakt

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/gate"
	"pkt.systems/vakt/internal/server"
	"pkt.systems/vakt/internal/tlsmgr"
)

// ShutdownGrace bounds graceful shutdown of the session server.
const ShutdownGrace = 10 * time.Second

// ServeOptions configures the session server run.
type ServeOptions struct {
	Config Config
	Logger pslog.Logger
}

// Serve runs the Vakt session server until ctx is done.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}

	base, err := server.NormalizeBasePath(cfg.Server.BasePath)
	if err != nil {
		return err
	}

	mode, err := tlsmgr.ParseMode(cfg.Server.TLS.Mode)
	if err != nil {
		return err
	}
	tlsCfg, err := tlsmgr.BuildServerTLSConfig(
		ctx,
		tlsmgr.Config{
			Mode:        mode,
			BundleFiles: cfg.Server.TLS.Bundle,
			Hostname:    cfg.Server.TLS.Hostname,
			Dir:         cfg.Server.TLS.Dir,
			CacheDir:    cfg.Server.TLS.CacheDir,
			ACMEEmail:   cfg.Server.TLS.ACMEEmail,
			RenewBefore: cfg.Server.TLS.RenewBefore,
		},
		logger.With("component", "tls"),
	)
	if err != nil {
		return err
	}
	if tlsCfg == nil {
		return fmt.Errorf("tls config is required")
	}

	handler, err := NewGateHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		ListenAddr: cfg.Server.Listen,
		DataDir:    cfg.Server.DataDir,
		BasePath:   base,
		TLSConfig:  tlsCfg,
		Logger:     logger.With("component", "http"),
		// No ReadTimeout/WriteTimeout: session watchers are long-lived websockets.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	srv := server.NewServer(srvCfg, server.WrapBasePath(base, handler))

	logger.Info("starting server",
		"listen", srvCfg.ListenAddr,
		"base", base,
		"tls_mode", cfg.Server.TLS.Mode,
		"max_inactive", cfg.Server.Session.MaxInactive.String(),
	)
	err = server.RunTLS(ctx, srv, ShutdownGrace)
	logger.Info("server stopped")
	return err
}

// NewGateHandler loads server state and users, starts the sweeper and the
// users file watcher, and returns the access-logged gate handler without a
// base path. Background work stops with ctx.
func NewGateHandler(ctx context.Context, cfg Config, logger pslog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	if cfg.Server.DataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		return nil, err
	}
	store, err := gate.LoadStore(cfg.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	users, err := gate.LoadUserStore(cfg.Server.UsersFile)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if users.Len() == 0 {
		logger.Warn("no users configured; add one with 'vakt users add'", "users_file", cfg.Server.UsersFile)
	}

	hub := gate.NewHub(logger.With("component", "hub"))
	gs := gate.NewHTTPServer(store, users, gate.NewAuthenticator(users), logger.With("component", "gate"), hub)
	gs.DataDir = cfg.Server.DataDir
	gs.Metrics = gate.NewMetrics()
	gs.TrustProxyHeaders = cfg.Server.TrustProxy
	if cfg.Server.Session.MaxInactive > 0 {
		gs.MaxInactive = cfg.Server.Session.MaxInactive
	}
	gs.SetLoginRate(cfg.Server.LoginRate.RPS, cfg.Server.LoginRate.Burst)
	gs.Metrics.SetActive(store.Len())

	// Sessions restored from disk may have expired or lost their user
	// while the server was down.
	gs.Sweep(ctx)
	gs.PruneOrphans(ctx)
	gs.StartSweeper(ctx, cfg.Server.Session.SweepInterval)

	if cfg.Server.UsersFile != "" {
		onReload := func() {
			if n := gs.PruneOrphans(ctx); n > 0 {
				logger.Info("ended sessions of removed users", "count", n)
			}
		}
		if err := gate.StartUserWatch(ctx, cfg.Server.UsersFile, users, logger.With("component", "user-watch"), onReload); err != nil {
			logger.Warn("user reload disabled", "err", err)
		}
	}

	return server.AccessLog(logger.With("component", "access"), gs.Handler()), nil
}
