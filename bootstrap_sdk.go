package vakt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/tlsmgr"
)

// Bootstrap ensures local TLS assets exist (auto mode) and writes cfg as YAML to path, or to
// the default config path when path is empty. An existing config is never
// overwritten.
func Bootstrap(ctx context.Context, cfg Config, path string, logger pslog.Logger) (string, error) {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config already exists at %s", path)
	} else if !os.IsNotExist(err) {
		return "", err
	}

	mode, err := tlsmgr.ParseMode(cfg.Server.TLS.Mode)
	if err != nil {
		return "", err
	}
	switch mode {
	case "", tlsmgr.ModeAuto:
		if _, err := tlsmgr.EnsureLocalServerCert(ctx, cfg.Server.TLS.Dir, cfg.Server.TLS.Hostname, logger); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	logger.Info("bootstrapped config", "path", path)
	return path, nil
}
