package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for Vakt.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Client   ClientConfig   `mapstructure:"client" yaml:"client"`
	Idle     IdleConfig     `mapstructure:"idle" yaml:"idle"`
	Terminal TerminalConfig `mapstructure:"terminal" yaml:"terminal"`
}

// ServerConfig configures the session server.
type ServerConfig struct {
	Listen    string        `mapstructure:"listen" yaml:"listen"`
	DataDir   string        `mapstructure:"data_dir" yaml:"data_dir"`
	UsersFile string        `mapstructure:"users_file" yaml:"users_file"`
	BasePath  string        `mapstructure:"base" yaml:"base"`
	Session   SessionConfig `mapstructure:"session" yaml:"session"`
	LoginRate RateConfig    `mapstructure:"login_rate" yaml:"login_rate"`
	// TrustProxy keys the login limiter on forwarding headers.
	TrustProxy bool      `mapstructure:"trust_proxy" yaml:"trust_proxy"`
	TLS        TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// SessionConfig controls server-side session lifetime.
type SessionConfig struct {
	MaxInactive   time.Duration `mapstructure:"max_inactive" yaml:"max_inactive"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// RateConfig is a token bucket applied per client IP.
type RateConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// ClientConfig configures client defaults.
type ClientConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	AuthFile string `mapstructure:"auth_file" yaml:"auth_file"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
}

// IdleConfig configures the client-side idle guard.
type IdleConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WarningLead        time.Duration `mapstructure:"warning_lead" yaml:"warning_lead"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	CountdownInterval  time.Duration `mapstructure:"countdown_interval" yaml:"countdown_interval"`
	ExtendFailureDelay time.Duration `mapstructure:"extend_failure_delay" yaml:"extend_failure_delay"`
	NoticeDuration     time.Duration `mapstructure:"notice_duration" yaml:"notice_duration"`
	// KeepaliveInterval is how often an active guard touches the server
	// session. Zero disables it.
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval"`
}

// TerminalConfig configures the guarded PTY.
type TerminalConfig struct {
	Term string `mapstructure:"term" yaml:"term"`
}

// TLSConfig configures TLS behavior for the session server.
type TLSConfig struct {
	Mode     string   `mapstructure:"mode" yaml:"mode"`
	Bundle   []string `mapstructure:"bundle" yaml:"bundle"`
	Hostname string   `mapstructure:"hostname" yaml:"hostname"`
	Dir      string   `mapstructure:"dir" yaml:"dir"`
	CacheDir string   `mapstructure:"cache_dir" yaml:"cache_dir"`
	// ACMEEmail is the ACME account contact in acme mode.
	ACMEEmail string `mapstructure:"acme_email" yaml:"acme_email,omitempty"`
	// RenewBefore is how close to expiry the server certificate is renewed.
	RenewBefore time.Duration `mapstructure:"renew_before" yaml:"renew_before"`
}

// Loader wraps Viper configuration loading for Vakt.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader initializes a Loader with standard defaults.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("VAKT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/vakt")
	v.AddConfigPath(DefaultConfigDir())

	setDefaults(v, DefaultConfig())
	return &Loader{v: v}
}

// Viper exposes the underlying Viper instance for flag binding and defaults.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = strings.TrimSpace(path)
}

// ReadInConfig reads configuration from file if available.
func (l *Loader) ReadInConfig() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load reads configuration and unmarshals it into a Config struct.
func (l *Loader) Load() (Config, error) {
	if err := l.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.expandPaths()
	if err := cfg.Idle.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the idle thresholds for consistency.
func (c IdleConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("idle.timeout must be positive")
	}
	if c.WarningLead < 0 || c.WarningLead >= c.Timeout {
		return errors.New("idle.warning_lead must be between 0 and idle.timeout")
	}
	if c.PollInterval <= 0 {
		return errors.New("idle.poll_interval must be positive")
	}
	if c.CountdownInterval <= 0 {
		return errors.New("idle.countdown_interval must be positive")
	}
	if c.ExtendFailureDelay < 0 {
		return errors.New("idle.extend_failure_delay must not be negative")
	}
	if c.KeepaliveInterval < 0 {
		return errors.New("idle.keepalive_interval must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.listen", cfg.Server.Listen)
	v.SetDefault("server.data_dir", cfg.Server.DataDir)
	v.SetDefault("server.users_file", cfg.Server.UsersFile)
	v.SetDefault("server.base", cfg.Server.BasePath)
	v.SetDefault("server.session.max_inactive", cfg.Server.Session.MaxInactive)
	v.SetDefault("server.session.sweep_interval", cfg.Server.Session.SweepInterval)
	v.SetDefault("server.login_rate.rps", cfg.Server.LoginRate.RPS)
	v.SetDefault("server.login_rate.burst", cfg.Server.LoginRate.Burst)
	v.SetDefault("server.trust_proxy", cfg.Server.TrustProxy)
	v.SetDefault("server.tls.mode", cfg.Server.TLS.Mode)
	v.SetDefault("server.tls.dir", cfg.Server.TLS.Dir)
	v.SetDefault("server.tls.cache_dir", cfg.Server.TLS.CacheDir)
	v.SetDefault("server.tls.renew_before", cfg.Server.TLS.RenewBefore)

	v.SetDefault("client.endpoint", cfg.Client.Endpoint)
	v.SetDefault("client.auth_file", cfg.Client.AuthFile)
	v.SetDefault("client.log_file", cfg.Client.LogFile)

	v.SetDefault("idle.timeout", cfg.Idle.Timeout)
	v.SetDefault("idle.warning_lead", cfg.Idle.WarningLead)
	v.SetDefault("idle.poll_interval", cfg.Idle.PollInterval)
	v.SetDefault("idle.countdown_interval", cfg.Idle.CountdownInterval)
	v.SetDefault("idle.extend_failure_delay", cfg.Idle.ExtendFailureDelay)
	v.SetDefault("idle.notice_duration", cfg.Idle.NoticeDuration)
	v.SetDefault("idle.keepalive_interval", cfg.Idle.KeepaliveInterval)

	v.SetDefault("terminal.term", cfg.Terminal.Term)
}
