package gate

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/protocol"
)

type wsConn struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	logger    pslog.Logger

	sendMu    sync.Mutex
	closeOnce sync.Once
}

func newWSConn(id, sessionID string, conn *websocket.Conn, logger pslog.Logger) *wsConn {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	return &wsConn{id: id, sessionID: sessionID, conn: conn, logger: logger}
}

func (c *wsConn) ID() string        { return c.id }
func (c *wsConn) SessionID() string { return c.sessionID }

func (c *wsConn) Send(ctx context.Context, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close starts the close handshake without waiting for the peer, so a
// handler ending a session never blocks on a slow watcher.
func (c *wsConn) Close(_ context.Context, reason string) error {
	c.closeOnce.Do(func() {
		go func() {
			_ = c.conn.Close(websocket.StatusNormalClosure, reason)
		}()
	})
	return nil
}

func (c *wsConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}
