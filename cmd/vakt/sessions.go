package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/vakt"
)

// NewSessionsCommand builds the sessions management command.
func NewSessionsCommand(loader *vakt.Loader) *cobra.Command {
	var client clientFlags

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and revoke your sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			sessions, err := vakt.Sessions(cmd.Context(), client.options(cmd, cfg, nil))
			if err != nil {
				return explainAuthError(err)
			}
			return printJSON(cmd.OutOrStdout(), sessions)
		},
	}
	client.register(cmd.PersistentFlags())

	revokeCmd := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "End one of your sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("session id is required")
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			if err := vakt.RevokeSession(cmd.Context(), client.options(cmd, cfg, nil), id); err != nil {
				return explainAuthError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session revoked")
			return nil
		},
	}
	cmd.AddCommand(revokeCmd)

	return cmd
}
