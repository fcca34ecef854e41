package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/vakt"
)

// NewLoginCommand builds the login command.
func NewLoginCommand(loader *vakt.Loader) *cobra.Command {
	var client clientFlags
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the gate and store the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			logger = logger.With("component", "login")
			opts := client.options(cmd, cfg, logger)
			if !cmd.Flags().Changed("endpoint") {
				opts.Endpoint = cfg.Client.Endpoint
			}

			reader := bufio.NewReader(os.Stdin)
			if username == "" {
				fmt.Fprint(os.Stdout, "Username: ")
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				username = line
			}
			username = strings.TrimSpace(username)
			if username == "" {
				return fmt.Errorf("username is required")
			}
			password, err := promptSecret("Password: ")
			if err != nil {
				return err
			}
			code, err := promptSecret("TOTP: ")
			if err != nil {
				return err
			}

			state, err := vakt.Login(cmd.Context(), vakt.LoginOptions{
				ClientOptions: opts,
				Username:      username,
				Password:      password,
				TOTP:          strings.TrimSpace(code),
			})
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("login succeeded", "user", state.Username, "endpoint", state.Endpoint, "auth_file", opts.AuthPath)
			return nil
		},
	}

	flags := cmd.Flags()
	client.register(flags)
	flags.StringVarP(&username, "username", "u", "", "username (prompted when empty)")

	return cmd
}

// promptSecret reads a line from the terminal without echo.
func promptSecret(label string) (string, error) {
	fmt.Fprint(os.Stdout, label)
	value, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return "", err
	}
	return string(value), nil
}
