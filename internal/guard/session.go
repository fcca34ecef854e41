package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/vakt/internal/idle"
	"pkt.systems/vakt/internal/sessionapi"
)

const requestTimeout = 10 * time.Second

// sessionAdapter exposes a gate client as idle.SessionAPI. A 401 or 403
// means the session is gone, any other non-2xx reply is a rejection, and
// transport failures are passed through so the manager only logs them.
type sessionAdapter struct {
	client *sessionapi.Client
}

func (s sessionAdapter) CheckStatus(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := s.client.Status(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, sessionapi.ErrUnauthenticated) {
		return fmt.Errorf("%w: %v", idle.ErrNotAuthenticated, err)
	}
	var se *sessionapi.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %v", idle.ErrStatusRejected, err)
	}
	return err
}

func (s sessionAdapter) Extend(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	_, err := s.client.Extend(ctx)
	return err
}
