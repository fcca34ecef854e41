package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/vakt"
)

// NewLogoutCommand builds the logout command.
func NewLogoutCommand(loader *vakt.Loader) *cobra.Command {
	var client clientFlags

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the stored session and forget its token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			return vakt.Logout(cmd.Context(), client.options(cmd, cfg, nil))
		},
	}
	client.register(cmd.Flags())

	return cmd
}

// NewStatusCommand builds the status command.
func NewStatusCommand(loader *vakt.Loader) *cobra.Command {
	var client clientFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session as the gate sees it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			status, err := vakt.Status(cmd.Context(), client.options(cmd, cfg, nil))
			if err != nil {
				return explainAuthError(err)
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	client.register(cmd.Flags())

	return cmd
}

// NewExtendCommand builds the extend command.
func NewExtendCommand(loader *vakt.Loader) *cobra.Command {
	var client clientFlags

	cmd := &cobra.Command{
		Use:   "extend",
		Short: "Renew the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			out, err := vakt.Extend(cmd.Context(), client.options(cmd, cfg, nil))
			if err != nil {
				return explainAuthError(err)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	client.register(cmd.Flags())

	return cmd
}
