package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/vakt"
)

// NewBootstrapCommand builds the bootstrap command.
func NewBootstrapCommand() *cobra.Command {
	var output string
	var hostname string
	var addAdmin bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Write a default config and local TLS assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := pslog.Ctx(cmd.Context()).With("component", "bootstrap")
			cfg := vakt.DefaultConfig()
			cfg.Server.TLS.Hostname = hostname
			path, err := vakt.Bootstrap(cmd.Context(), cfg, output, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			if !addAdmin {
				return nil
			}
			creds, err := vakt.UsersAdd(cfg.Server.UsersFile, "admin", "")
			if err != nil {
				return formatUserError(err)
			}
			printCredentials(cmd.OutOrStdout(), creds)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "config path (defaults to ~/.vakt/config.yaml)")
	flags.StringVar(&hostname, "hostname", "", "server certificate hostname (defaults to localhost)")
	flags.BoolVar(&addAdmin, "add-admin", false, "also create an admin user and print its credentials")

	return cmd
}
