package sessionapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"pkt.systems/vakt/internal/protocol"
)

const watchReadLimit = 64 << 10

// Watch subscribes to the session's push channel and calls handle for
// every message in arrival order. It returns nil once a terminal message
// (expired or logged out) has been handled, ctx.Err() on cancellation, and
// the transport error otherwise. A rejected handshake returns a
// StatusError.
func (c *Client) Watch(ctx context.Context, handle func(protocol.Envelope)) error {
	if c.token == "" {
		return fmt.Errorf("watch: %w", ErrUnauthenticated)
	}
	wsBase, err := websocketURL(c.base)
	if err != nil {
		return err
	}
	dialCtx := ctx
	httpClient := *c.http
	if httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, httpClient.Timeout)
		defer cancel()
		httpClient.Timeout = 0
	}
	conn, resp, err := websocket.Dial(dialCtx, wsBase+"/ws/session", &websocket.DialOptions{
		HTTPClient: &httpClient,
		HTTPHeader: http.Header{"Authorization": {"Bearer " + c.token}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return &StatusError{Op: "watch", StatusCode: resp.StatusCode}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("watch: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(watchReadLimit)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("watch: %w", err)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("dropping malformed session message", "err", err)
			continue
		}
		handle(env)
		if env.Type.Terminal() {
			return nil
		}
	}
}
