package vakt

import (
	"context"
	"errors"
	"os"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/authstore"
	"pkt.systems/vakt/internal/guard"
	"pkt.systems/vakt/internal/idle"
)

// GuardResult describes how a guarded run ended.
type GuardResult = guard.Result

// ErrNotLoggedIn is returned by Guard when there is no live session.
var ErrNotLoggedIn = guard.ErrNotLoggedIn

// ErrGateRejected is returned by Guard when the gate fails the startup status
// check with something other than 401 or 403. The stored login is kept.
var ErrGateRejected = guard.ErrGateRejected

// GuardOptions configures a guarded command.
type GuardOptions struct {
	Client ClientOptions
	// Command is the argv to run; empty runs the login shell.
	Command []string
	Idle    IdleConfig
	Term    string
	Stdin   *os.File
	Stdout  *os.File
	Logger  pslog.Logger
}

// Guard runs a command under the idle guard using the stored login. When
// the guard logs out, the stored token is forgotten.
func Guard(ctx context.Context, opts GuardOptions) (GuardResult, error) {
	copts := opts.Client.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = copts.Logger
	}
	client, state, err := OpenClient(copts)
	if err != nil {
		return GuardResult{}, err
	}
	if !state.Authenticated() {
		return GuardResult{}, ErrNotLoggedIn
	}
	runner := guard.New(guard.Options{
		Command:            opts.Command,
		Term:               opts.Term,
		Client:             client,
		Timeout:            opts.Idle.Timeout,
		WarningLead:        opts.Idle.WarningLead,
		PollInterval:       opts.Idle.PollInterval,
		CountdownInterval:  opts.Idle.CountdownInterval,
		ExtendFailureDelay: opts.Idle.ExtendFailureDelay,
		NoticeDuration:     opts.Idle.NoticeDuration,
		KeepaliveInterval:  opts.Idle.KeepaliveInterval,
		Stdin:              opts.Stdin,
		Stdout:             opts.Stdout,
		Logger:             logger.With("component", "guard"),
		OnLogout: func(reason idle.Reason) {
			if err := authstore.Clear(copts.AuthPath); err != nil {
				logger.Warn("failed to clear stored session", "err", err)
			}
		},
	})
	res, err := runner.Run(ctx)
	if errors.Is(err, guard.ErrNotLoggedIn) {
		if clearErr := authstore.Clear(copts.AuthPath); clearErr != nil {
			logger.Warn("failed to clear stored session", "err", clearErr)
		}
	}
	return res, err
}
