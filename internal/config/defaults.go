package config

// DefaultConfig returns the default configuration values.
func DefaultConfig() Config {
	cfgDir := DefaultConfigDir()

	return Config{
		Server: ServerConfig{
			Listen:    DefaultListenAddr,
			DataDir:   cfgDir,
			UsersFile: DefaultUsersPath(),
			BasePath:  DefaultBasePath,
			Session: SessionConfig{
				MaxInactive:   DefaultMaxInactive,
				SweepInterval: DefaultSweepInterval,
			},
			LoginRate: RateConfig{
				RPS:   DefaultLoginRPS,
				Burst: DefaultLoginBurst,
			},
			TLS: TLSConfig{
				Mode:        DefaultTLSMode,
				Dir:         DefaultTLSDir(),
				CacheDir:    DefaultTLSCacheDir(),
				RenewBefore: DefaultTLSRenewBefore,
			},
		},
		Client: ClientConfig{
			Endpoint: DefaultClientEndpoint,
			AuthFile: DefaultAuthPath(),
			LogFile:  DefaultLogPath(),
		},
		Idle: DefaultIdleConfig(),
		Terminal: TerminalConfig{
			Term: DefaultTerminalTerm,
		},
	}
}

// DefaultIdleConfig returns the stock idle guard thresholds.
func DefaultIdleConfig() IdleConfig {
	return IdleConfig{
		Timeout:            DefaultIdleTimeout,
		WarningLead:        DefaultWarningLead,
		PollInterval:       DefaultPollInterval,
		CountdownInterval:  DefaultCountdownInterval,
		ExtendFailureDelay: DefaultExtendFailureDelay,
		NoticeDuration:     DefaultNoticeDuration,
		KeepaliveInterval:  DefaultKeepaliveInterval,
	}
}
