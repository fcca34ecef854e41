package vakt

import (
	"context"
	"errors"

	"pkt.systems/vakt/internal/authstore"
	"pkt.systems/vakt/internal/protocol"
	"pkt.systems/vakt/internal/sessionapi"
)

// SessionStatus is the gate's view of the current session.
type SessionStatus = protocol.StatusResponse

// SessionExtension is the result of an extension.
type SessionExtension = protocol.ExtendResponse

// SessionInfo describes one of the caller's sessions.
type SessionInfo = protocol.SessionInfo

// Status queries the gate for the stored session. A rejected token is
// forgotten locally.
func Status(ctx context.Context, opts ClientOptions) (SessionStatus, error) {
	opts = opts.withDefaults()
	client, _, err := OpenClient(opts)
	if err != nil {
		return SessionStatus{}, err
	}
	status, err := client.Status(ctx)
	return status, forgetRejected(opts, err)
}

// Extend renews the stored session on the gate.
func Extend(ctx context.Context, opts ClientOptions) (SessionExtension, error) {
	opts = opts.withDefaults()
	client, _, err := OpenClient(opts)
	if err != nil {
		return SessionExtension{}, err
	}
	out, err := client.Extend(ctx)
	return out, forgetRejected(opts, err)
}

// Sessions lists the caller's live sessions.
func Sessions(ctx context.Context, opts ClientOptions) ([]SessionInfo, error) {
	opts = opts.withDefaults()
	client, _, err := OpenClient(opts)
	if err != nil {
		return nil, err
	}
	out, err := client.Sessions(ctx)
	return out, forgetRejected(opts, err)
}

// RevokeSession ends one of the caller's sessions. Revoking the current
// session also forgets the local token.
func RevokeSession(ctx context.Context, opts ClientOptions, id string) error {
	opts = opts.withDefaults()
	client, state, err := OpenClient(opts)
	if err != nil {
		return err
	}
	if err := client.RevokeSession(ctx, id); err != nil {
		return forgetRejected(opts, err)
	}
	if id == state.SessionID {
		return authstore.Clear(opts.AuthPath)
	}
	return nil
}

func forgetRejected(opts ClientOptions, err error) error {
	if err == nil || !errors.Is(err, sessionapi.ErrUnauthenticated) {
		return err
	}
	state, loadErr := authstore.LoadOptional(opts.AuthPath)
	if loadErr == nil && state.Authenticated() {
		if clearErr := authstore.Clear(opts.AuthPath); clearErr != nil {
			opts.Logger.Warn("failed to clear rejected session", "err", clearErr)
		}
	}
	return err
}
