package config

import "time"

const (
	// DefaultConfigDirName is the directory name under the home directory.
	DefaultConfigDirName = ".vakt"
	// DefaultConfigFileName is the default config file name.
	DefaultConfigFileName = "config.yaml"
	// DefaultAuthFileName is the default auth file name.
	DefaultAuthFileName = "auth.json"
	// DefaultTLSDirName is the TLS directory name under the config directory.
	DefaultTLSDirName = "tls"
	// DefaultTLSCacheDirName is the ACME cache directory name under the TLS directory.
	DefaultTLSCacheDirName = "cache"
	// DefaultUsersFileName is the default users file name.
	DefaultUsersFileName = "users.json"
	// DefaultLogFileName is the default client log file name.
	DefaultLogFileName = "vakt.log"

	// DefaultListenAddr is the default server listen address.
	DefaultListenAddr = "127.0.0.1:12853"
	// DefaultBasePath is the default HTTP base path.
	DefaultBasePath = "/v1"
	// DefaultTLSMode is the default TLS mode.
	DefaultTLSMode = "auto"
	// DefaultTLSRenewBefore is how close to expiry the server certificate is renewed.
	DefaultTLSRenewBefore = 30 * 24 * time.Hour
	// DefaultClientEndpoint is the default client endpoint.
	DefaultClientEndpoint = "https://localhost:12853/v1"
	// DefaultTerminalTerm is the default TERM for the guarded PTY.
	DefaultTerminalTerm = "xterm-256color"

	// DefaultMaxInactive is how long the server keeps an untouched session.
	DefaultMaxInactive = 5 * time.Minute
	// DefaultSweepInterval is how often the server drops expired sessions.
	DefaultSweepInterval = 30 * time.Second
	// DefaultLoginRPS is the sustained login attempts per second per client IP.
	DefaultLoginRPS = 0.2
	// DefaultLoginBurst is the login burst allowance per client IP.
	DefaultLoginBurst = 5

	// DefaultIdleTimeout is the idle period after which the guard logs out.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultWarningLead is how long before the timeout the warning appears.
	DefaultWarningLead = 1 * time.Minute
	// DefaultPollInterval is the idle check period.
	DefaultPollInterval = 10 * time.Second
	// DefaultCountdownInterval is the warning countdown tick.
	DefaultCountdownInterval = 1 * time.Second
	// DefaultExtendFailureDelay is the pause between a failed extension and logout.
	DefaultExtendFailureDelay = 2 * time.Second
	// DefaultNoticeDuration is how long transient notices stay visible.
	DefaultNoticeDuration = 3 * time.Second
	// DefaultKeepaliveInterval is how often an active guard touches the server session.
	DefaultKeepaliveInterval = 1 * time.Minute
)
