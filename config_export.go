package vakt

import "pkt.systems/vakt/internal/config"

// Config mirrors the Vakt configuration.
type Config = config.Config

// ServerConfig configures the session server.
type ServerConfig = config.ServerConfig

// ClientConfig configures client defaults.
type ClientConfig = config.ClientConfig

// IdleConfig configures the idle guard thresholds.
type IdleConfig = config.IdleConfig

// TerminalConfig configures the guarded PTY.
type TerminalConfig = config.TerminalConfig

// TLSConfig configures TLS for the session server.
type TLSConfig = config.TLSConfig

// Loader wraps configuration loading via Viper.
type Loader = config.Loader

const (
	// DefaultConfigDirName is the directory name under the home directory.
	DefaultConfigDirName = config.DefaultConfigDirName
	// DefaultConfigFileName is the default config file name.
	DefaultConfigFileName = config.DefaultConfigFileName
	// DefaultAuthFileName is the default auth file name.
	DefaultAuthFileName = config.DefaultAuthFileName
	// DefaultTLSDirName is the TLS directory name under the config directory.
	DefaultTLSDirName = config.DefaultTLSDirName
	// DefaultUsersFileName is the default users file name.
	DefaultUsersFileName = config.DefaultUsersFileName
	// DefaultLogFileName is the default client log file name.
	DefaultLogFileName = config.DefaultLogFileName

	// DefaultListenAddr is the default server listen address.
	DefaultListenAddr = config.DefaultListenAddr
	// DefaultBasePath is the default HTTP base path.
	DefaultBasePath = config.DefaultBasePath
	// DefaultTLSMode is the default TLS mode.
	DefaultTLSMode = config.DefaultTLSMode
	// DefaultClientEndpoint is the default client endpoint.
	DefaultClientEndpoint = config.DefaultClientEndpoint
	// DefaultTerminalTerm is the default TERM for the guarded PTY.
	DefaultTerminalTerm = config.DefaultTerminalTerm
)

// NewLoader returns a config loader with defaults wired.
func NewLoader() *config.Loader {
	return config.NewLoader()
}

// DefaultConfig returns default Vakt configuration.
func DefaultConfig() Config {
	return config.DefaultConfig()
}

// DefaultConfigDir returns the default config directory.
func DefaultConfigDir() string {
	return config.DefaultConfigDir()
}

// DefaultConfigPath returns the default config path.
func DefaultConfigPath() string {
	return config.DefaultConfigPath()
}

// DefaultAuthPath returns the default auth file path.
func DefaultAuthPath() string {
	return config.DefaultAuthPath()
}

// DefaultLogPath returns the default client log path.
func DefaultLogPath() string {
	return config.DefaultLogPath()
}

// DefaultTLSDir returns the default TLS directory.
func DefaultTLSDir() string {
	return config.DefaultTLSDir()
}

// DefaultUsersPath returns the default users file path.
func DefaultUsersPath() string {
	return config.DefaultUsersPath()
}

// DefaultTLSCacheDir returns the default ACME cache directory.
func DefaultTLSCacheDir() string {
	return config.DefaultTLSCacheDir()
}
