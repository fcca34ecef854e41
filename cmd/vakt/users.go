package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"pkt.systems/vakt"
)

// NewUsersCommand builds the users management command. It edits the users
// file directly; a running server picks up changes and ends the sessions of
// deleted users.
func NewUsersCommand(loader *vakt.Loader) *cobra.Command {
	var usersFile string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage gate users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetUsageTemplate(usersUsageTemplate)

	flags := cmd.PersistentFlags()
	flags.StringVar(&usersFile, "users-file", vakt.DefaultUsersPath(), "path to users file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveUsersFile(cmd, loader, usersFile)
			if err != nil {
				return err
			}
			users, err := vakt.UsersList(path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users)
		},
	}

	var addPrompt bool
	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveUsersFile(cmd, loader, usersFile)
			if err != nil {
				return err
			}
			password, err := maybePromptPassword(addPrompt)
			if err != nil {
				return err
			}
			creds, err := vakt.UsersAdd(path, args[0], password)
			if err != nil {
				return formatUserError(err)
			}
			printCredentials(cmd.OutOrStdout(), creds)
			return nil
		},
	}
	addCmd.Flags().BoolVar(&addPrompt, "prompt", false, "prompt for password")

	var chpasswdPrompt bool
	chpasswdCmd := &cobra.Command{
		Use:   "chpasswd <username>",
		Short: "Change a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveUsersFile(cmd, loader, usersFile)
			if err != nil {
				return err
			}
			password, err := maybePromptPassword(chpasswdPrompt)
			if err != nil {
				return err
			}
			creds, err := vakt.UsersChpasswd(path, args[0], password)
			if err != nil {
				return formatUserError(err)
			}
			if !chpasswdPrompt {
				fmt.Fprintf(cmd.OutOrStdout(), "password: %s\n", creds.Password)
			}
			return nil
		},
	}
	chpasswdCmd.Flags().BoolVar(&chpasswdPrompt, "prompt", false, "prompt for password")

	rotateCmd := &cobra.Command{
		Use:   "rotate-totp <username>",
		Short: "Rotate a user's TOTP secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveUsersFile(cmd, loader, usersFile)
			if err != nil {
				return err
			}
			creds, err := vakt.UsersRotateTOTP(path, args[0])
			if err != nil {
				return formatUserError(err)
			}
			printCredentials(cmd.OutOrStdout(), creds)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user and end their sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveUsersFile(cmd, loader, usersFile)
			if err != nil {
				return err
			}
			if err := vakt.UsersDelete(path, args[0]); err != nil {
				return formatUserError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "user deleted")
			return nil
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(addCmd)
	cmd.AddCommand(chpasswdCmd)
	cmd.AddCommand(rotateCmd)
	cmd.AddCommand(deleteCmd)

	return cmd
}

func resolveUsersFile(cmd *cobra.Command, loader *vakt.Loader, usersFileFlag string) (string, error) {
	cfg, err := loader.Load()
	if err != nil {
		return "", err
	}
	usersFile := usersFileFlag
	if !cmd.Flags().Changed("users-file") {
		usersFile = cfg.Server.UsersFile
	}
	usersFile = strings.TrimSpace(usersFile)
	if usersFile == "" {
		return "", fmt.Errorf("users file is required")
	}
	return usersFile, nil
}

func formatUserError(err error) error {
	switch {
	case errors.Is(err, vakt.ErrUserExists):
		return fmt.Errorf("user already exists")
	case errors.Is(err, vakt.ErrUserNotFound):
		return fmt.Errorf("user not found")
	default:
		return err
	}
}

func maybePromptPassword(prompt bool) (string, error) {
	if !prompt {
		return "", nil
	}
	password, err := promptSecret("Password: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("password is required")
	}
	return password, nil
}

func printCredentials(w io.Writer, creds vakt.UserCredentials) {
	_, _ = fmt.Fprintf(w, "username: %s\n", creds.Username)
	if creds.Password != "" {
		_, _ = fmt.Fprintf(w, "password: %s\n", creds.Password)
	}
	if creds.TOTPSecret != "" {
		_, _ = fmt.Fprintf(w, "totp_secret: %s\n", creds.TOTPSecret)
	}
	if creds.TOTPURL != "" {
		_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", creds.TOTPURL)
		printQR(w, creds.TOTPURL)
	}
}

func printQR(w io.Writer, url string) {
	if strings.TrimSpace(url) == "" {
		return
	}
	_, _ = fmt.Fprintln(w, "totp_qr:")
	qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
}

const usersUsageTemplate = `Usage:
  {{.CommandPath}} [command] [flags]

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}{{rpad .Name .NamePadding }} {{.Short}}
{{end}}{{end}}{{end}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}

{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}

{{if .HasHelpSubCommands}}Additional help topics:
{{range .Commands}}{{if .IsHelpCommand}}{{rpad .CommandPath .CommandPathPadding}} {{.Short}}
{{end}}{{end}}{{end}}

{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
