package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/vakt"
)

// NewServeCommand builds the session gate server command.
func NewServeCommand(loader *vakt.Loader) *cobra.Command {
	v := loader.Viper()
	defaults := vakt.DefaultConfig().Server

	var bindErr error

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session gate server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bindErr != nil {
				return bindErr
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			logger := pslog.Ctx(cmd.Context()).With("component", "serve")
			return vakt.Serve(cmd.Context(), vakt.ServeOptions{
				Config: cfg,
				Logger: logger,
			})
		},
	}

	flags := cmd.Flags()
	flags.String("listen", vakt.DefaultListenAddr, "listen address for HTTPS server")
	flags.String("data-dir", vakt.DefaultConfigDir(), "directory for persisted sessions")
	flags.String("users-file", vakt.DefaultUsersPath(), "path to users file")
	flags.String("base", vakt.DefaultBasePath, "base path prefix for all HTTP routes")
	flags.Duration("max-inactive", defaults.Session.MaxInactive, "server session inactivity window")
	flags.Duration("sweep-interval", defaults.Session.SweepInterval, "how often expired sessions are swept")
	flags.Float64("login-rps", defaults.LoginRate.RPS, "login attempts per second allowed per client IP")
	flags.Int("login-burst", defaults.LoginRate.Burst, "login attempt burst per client IP")
	flags.Bool("trust-proxy", false, "key login throttling on X-Forwarded-For")
	flags.String("tls-mode", vakt.DefaultTLSMode, "tls mode: auto, bundle, or acme")
	flags.StringArray("tls-bundle", nil, "path to PEM bundle file (repeatable)")
	flags.String("tls-dir", vakt.DefaultTLSDir(), "tls directory")
	flags.String("tls-cache-dir", vakt.DefaultTLSCacheDir(), "tls cache directory for acme")
	flags.String("tls-hostname", "", "hostname for acme or server cert")
	flags.String("tls-acme-email", "", "contact email for the acme account")
	flags.Duration("tls-renew-before", defaults.TLS.RenewBefore, "renew the server cert this long before it expires")

	bind := func(key, name string) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			bindErr = err
		}
	}

	bind("server.listen", "listen")
	bind("server.data_dir", "data-dir")
	bind("server.users_file", "users-file")
	bind("server.base", "base")
	bind("server.session.max_inactive", "max-inactive")
	bind("server.session.sweep_interval", "sweep-interval")
	bind("server.login_rate.rps", "login-rps")
	bind("server.login_rate.burst", "login-burst")
	bind("server.trust_proxy", "trust-proxy")
	bind("server.tls.mode", "tls-mode")
	bind("server.tls.bundle", "tls-bundle")
	bind("server.tls.dir", "tls-dir")
	bind("server.tls.cache_dir", "tls-cache-dir")
	bind("server.tls.hostname", "tls-hostname")
	bind("server.tls.acme_email", "tls-acme-email")
	bind("server.tls.renew_before", "tls-renew-before")

	return cmd
}
