package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/vakt"
)

// NewRootCommand builds the root CLI command. Without a subcommand it runs
// the login shell, or the command after --, under the idle guard.
func NewRootCommand(loader *vakt.Loader) *cobra.Command {
	var configFile string
	var client clientFlags
	var termName string
	var bindErr error

	v := loader.Viper()

	cmd := &cobra.Command{
		Use:   "vakt [flags] [-- command [args...]]",
		Short: "Idle session guard and session gate",
		Long: "Runs a shell or command under the idle guard. After a period without\n" +
			"input a countdown is shown; press e to extend the session or l to log out.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if configFile != "" {
				loader.SetConfigFile(configFile)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if bindErr != nil {
				return bindErr
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			logger, closer, err := openClientLogger(cfg.Client.LogFile)
			if err != nil {
				return err
			}
			defer func() {
				_ = closer.Close()
			}()
			logger = logger.With("component", "guard")
			ctx := pslog.ContextWithLogger(cmd.Context(), logger)

			termValue := termName
			if !cmd.Flags().Changed("term") {
				termValue = cfg.Terminal.Term
			}
			res, err := vakt.Guard(ctx, vakt.GuardOptions{
				Client:  client.options(cmd, cfg, logger),
				Command: args,
				Idle:    cfg.Idle,
				Term:    termValue,
				Logger:  logger,
			})
			if err != nil {
				return explainAuthError(err)
			}
			if res.LoggedOut {
				cmd.PrintErrf("vakt: logged out (%s)\n", res.Reason)
			}
			if res.ExitCode != 0 {
				return exitError{code: res.ExitCode}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	flags := cmd.Flags()
	client.register(flags)
	flags.StringVar(&termName, "term", vakt.DefaultTerminalTerm, "TERM for the guarded PTY")
	flags.Duration("idle-timeout", vakt.DefaultConfig().Idle.Timeout, "inactivity before logout")
	flags.Duration("warning-lead", vakt.DefaultConfig().Idle.WarningLead, "how long before logout the countdown appears")
	flags.Duration("keepalive", vakt.DefaultConfig().Idle.KeepaliveInterval, "how often activity touches the gate session (0 disables)")

	bind := func(key, name string) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			bindErr = err
		}
	}
	bind("idle.timeout", "idle-timeout")
	bind("idle.warning_lead", "warning-lead")
	bind("idle.keepalive_interval", "keepalive")

	cmd.AddCommand(NewLoginCommand(loader))
	cmd.AddCommand(NewLogoutCommand(loader))
	cmd.AddCommand(NewStatusCommand(loader))
	cmd.AddCommand(NewExtendCommand(loader))
	cmd.AddCommand(NewSessionsCommand(loader))
	cmd.AddCommand(NewUsersCommand(loader))
	cmd.AddCommand(NewServeCommand(loader))
	cmd.AddCommand(NewTLSCommand(loader))
	cmd.AddCommand(NewBootstrapCommand())

	return cmd
}
