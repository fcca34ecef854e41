package guard

import (
	"context"
	"errors"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/protocol"
	"pkt.systems/vakt/internal/sessionapi"
)

const (
	watchBackoffMin = time.Second
	watchBackoffMax = 30 * time.Second
)

// expirer is the part of the idle manager the background loops drive.
type expirer interface {
	Expire(ctx context.Context)
	CheckServer(ctx context.Context) error
	LastActivity() time.Time
}

// watchSession follows the gate's push channel and expires the local
// session when the gate reports it ended. Dropped connections are retried
// with exponential backoff; a rejected handshake triggers a status probe.
func watchSession(ctx context.Context, client *sessionapi.Client, mgr expirer, logger pslog.Logger) {
	backoff := watchBackoffMin
	for {
		ended := false
		err := client.Watch(ctx, func(env protocol.Envelope) {
			switch {
			case env.Type.Terminal():
				var payload protocol.EndedPayload
				_ = env.DecodePayload(&payload)
				logger.Info("gate ended session", "type", string(env.Type), "reason", payload.Reason)
				ended = true
			case env.Type == protocol.MessageError:
				var payload protocol.ErrorPayload
				_ = env.DecodePayload(&payload)
				logger.Warn("gate reported error", "message", payload.Message)
			default:
				logger.Debug("session message", "type", string(env.Type), "seq", env.Seq)
			}
		})
		if ended {
			mgr.Expire(ctx)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, sessionapi.ErrUnauthenticated) {
			if mgr.CheckServer(ctx) != nil {
				logger.Debug("session watch rejected", "err", err)
			}
		} else if err == nil {
			backoff = watchBackoffMin
		} else {
			logger.Debug("session watch dropped", "err", err, "retry_in", backoff.String())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, watchBackoffMax)
	}
}

// keepalive touches the gate session when the user was active since the
// previous touch, so a busy terminal does not lose its server session.
type keepalive struct {
	mgr       expirer
	lastTouch time.Time
}

func (k *keepalive) tick(ctx context.Context) {
	last := k.mgr.LastActivity()
	if !last.After(k.lastTouch) {
		return
	}
	if err := k.mgr.CheckServer(ctx); err != nil {
		return
	}
	k.lastTouch = last
}

func runKeepalive(ctx context.Context, interval time.Duration, mgr expirer) {
	if interval <= 0 {
		return
	}
	k := &keepalive{mgr: mgr, lastTouch: mgr.LastActivity()}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}
