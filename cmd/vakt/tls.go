package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/vakt"
)

// tlsTarget resolves the TLS directory and hostname from flags or config.
type tlsTarget struct {
	loader   *vakt.Loader
	dir      string
	hostname string
}

func (t *tlsTarget) resolve(cmd *cobra.Command) (string, string, error) {
	cfg, err := t.loader.Load()
	if err != nil {
		return "", "", err
	}
	dir, hostname := t.dir, t.hostname
	if !cmd.Flags().Changed("dir") {
		dir = cfg.Server.TLS.Dir
	}
	if !cmd.Flags().Changed("hostname") {
		hostname = cfg.Server.TLS.Hostname
	}
	if dir == "" {
		dir = vakt.DefaultTLSDir()
	}
	return dir, hostname, nil
}

// NewTLSCommand builds the TLS management command.
func NewTLSCommand(loader *vakt.Loader) *cobra.Command {
	target := &tlsTarget{loader: loader}

	cmd := &cobra.Command{
		Use:   "tls",
		Short: "Manage the gate's local CA and server certificate",
	}
	cmd.PersistentFlags().StringVar(&target.dir, "dir", vakt.DefaultTLSDir(), "tls directory")

	cmd.AddCommand(newTLSNewCommand(target))
	cmd.AddCommand(newTLSExportCommand(target))

	return cmd
}

func newTLSNewCommand(target *tlsTarget) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a CA and a server certificate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, hostname, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			return vakt.TLSNew(cmd.Context(), dir, hostname, tlsLogger(cmd))
		},
	}
	cmd.PersistentFlags().StringVar(&target.hostname, "hostname", "", "server certificate hostname (defaults to localhost)")

	cmd.AddCommand(&cobra.Command{
		Use:   "ca",
		Short: "Generate a new CA certificate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			return vakt.TLSNewCA(cmd.Context(), dir, tlsLogger(cmd))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "server",
		Short: "Issue a server certificate from the existing CA",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, hostname, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			return vakt.TLSNewServer(cmd.Context(), dir, hostname, tlsLogger(cmd))
		},
	})

	return cmd
}

func newTLSExportCommand(target *tlsTarget) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the CA certificate for clients on other hosts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			if output == "" {
				return vakt.TLSExportCA(dir, cmd.OutOrStdout())
			}
			file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if err := vakt.TLSExportCA(dir, file); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported CA to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (defaults to stdout)")

	return cmd
}

func tlsLogger(cmd *cobra.Command) pslog.Logger {
	return pslog.Ctx(cmd.Context()).With("component", "tls")
}
