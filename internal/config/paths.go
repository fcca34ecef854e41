package config

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv names the environment variable that relocates every default path.
const HomeEnv = "VAKT_HOME"

// DefaultConfigDir returns $VAKT_HOME when set, otherwise ~/.vakt. Without a
// resolvable home directory the directory is relative to the working directory.
func DefaultConfigDir() string {
	if dir := strings.TrimSpace(os.Getenv(HomeEnv)); dir != "" {
		return filepath.Clean(ExpandPath(dir))
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultConfigDirName
	}
	return filepath.Join(home, DefaultConfigDirName)
}

func underConfigDir(elem ...string) string {
	return filepath.Join(append([]string{DefaultConfigDir()}, elem...)...)
}

// DefaultConfigPath returns the default config file.
func DefaultConfigPath() string { return underConfigDir(DefaultConfigFileName) }

// DefaultAuthPath returns where the client keeps its session token.
func DefaultAuthPath() string { return underConfigDir(DefaultAuthFileName) }

// DefaultLogPath returns the guard's log file.
func DefaultLogPath() string { return underConfigDir(DefaultLogFileName) }

// DefaultTLSDir holds the local CA and the gate's server certificate.
func DefaultTLSDir() string { return underConfigDir(DefaultTLSDirName) }

// DefaultTLSCacheDir is the ACME certificate cache.
func DefaultTLSCacheDir() string { return underConfigDir(DefaultTLSDirName, DefaultTLSCacheDirName) }

// DefaultUsersPath returns the gate's user database.
func DefaultUsersPath() string { return underConfigDir(DefaultUsersFileName) }

// ExpandPath replaces a leading "~" or "~/" with the current user's home
// directory. Other paths, and "~user" forms, are returned unchanged.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// expandPaths applies ExpandPath to every file location in cfg.
func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Server.DataDir,
		&c.Server.UsersFile,
		&c.Server.TLS.Dir,
		&c.Server.TLS.CacheDir,
		&c.Client.AuthFile,
		&c.Client.LogFile,
	} {
		*p = ExpandPath(*p)
	}
	for i, bundle := range c.Server.TLS.Bundle {
		c.Server.TLS.Bundle[i] = ExpandPath(bundle)
	}
}
