package idle

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pslog"
)

// Bootstrap probes the server session and, only when it is authenticated,
// creates and starts a Manager. An unreachable server yields
// ErrStatusUnavailable and no Manager. Errors wrapping ErrNotAuthenticated or
// ErrStatusRejected are returned as is.
func Bootstrap(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("session api is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	opts.Logger = logger
	if err := opts.Session.CheckStatus(ctx); err != nil {
		if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrStatusRejected) {
			return nil, err
		}
		logger.Warn("session status check failed; idle guard not started", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	m, err := New(opts)
	if err != nil {
		return nil, err
	}
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
