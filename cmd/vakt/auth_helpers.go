package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pkt.systems/prettyx"
	"pkt.systems/pslog"
	"pkt.systems/vakt"
)

// clientFlags are shared by every command that talks to the gate.
type clientFlags struct {
	endpoint string
	authFile string
	tlsDir   string
}

func (f *clientFlags) register(flags *pflag.FlagSet) {
	flags.StringVarP(&f.endpoint, "endpoint", "e", vakt.DefaultClientEndpoint, "gate endpoint (https base URL)")
	flags.StringVar(&f.authFile, "auth-file", vakt.DefaultAuthPath(), "path to auth file")
	flags.StringVar(&f.tlsDir, "tls-dir", vakt.DefaultTLSDir(), "directory holding the local CA to trust")
}

// options resolves flags against config. Without an explicit endpoint the
// stored login's endpoint wins over the configured one.
func (f *clientFlags) options(cmd *cobra.Command, cfg vakt.Config, logger pslog.Logger) vakt.ClientOptions {
	opts := vakt.ClientOptions{
		Endpoint: f.endpoint,
		AuthPath: f.authFile,
		TLSDir:   f.tlsDir,
		Logger:   logger,
	}
	flags := cmd.Flags()
	if !flags.Changed("auth-file") {
		opts.AuthPath = cfg.Client.AuthFile
	}
	if !flags.Changed("tls-dir") {
		opts.TLSDir = cfg.Server.TLS.Dir
	}
	if !flags.Changed("endpoint") {
		opts.Endpoint = ""
		state, err := vakt.LoadAuth(opts.AuthPath)
		if err != nil || state.Endpoint == "" {
			opts.Endpoint = cfg.Client.Endpoint
		}
	}
	return opts
}

// explainAuthError turns a rejected or missing login into a hint.
func explainAuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vakt.ErrNotLoggedIn), errors.Is(err, vakt.ErrUnauthenticated):
		return fmt.Errorf("%w; run `vakt login`", err)
	default:
		return err
	}
}

func printJSON(w io.Writer, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return prettyx.PrettyTo(w, data, prettyx.DefaultOptions)
}
