package gate

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/protocol"
)

type connection interface {
	ID() string
	SessionID() string
	Send(ctx context.Context, env protocol.Envelope) error
	Close(ctx context.Context, reason string) error
}

// Hub fans session events out to websocket watchers.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*watchState
	logger   pslog.Logger
}

type watchState struct {
	conns map[string]connection
	seq   uint64
}

// NewHub constructs a Hub.
func NewHub(logger pslog.Logger) *Hub {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	return &Hub{
		sessions: make(map[string]*watchState),
		logger:   logger,
	}
}

// Register adds a watcher for its session.
func (h *Hub) Register(conn connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.sessions[conn.SessionID()]
	if state == nil {
		state = &watchState{conns: make(map[string]connection)}
		h.sessions[conn.SessionID()] = state
	}
	state.conns[conn.ID()] = conn
}

// Unregister removes a watcher.
func (h *Hub) Unregister(conn connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.sessions[conn.SessionID()]
	if state == nil {
		return
	}
	delete(state.conns, conn.ID())
	if len(state.conns) == 0 {
		delete(h.sessions, conn.SessionID())
	}
}

// Publish sends a message to every watcher of sessionID. Terminal messages
// also close the watchers.
func (h *Hub) Publish(ctx context.Context, sessionID string, msgType protocol.MessageType, payload any) error {
	h.mu.Lock()
	state := h.sessions[sessionID]
	if state == nil {
		h.mu.Unlock()
		return nil
	}
	state.seq++
	seq := state.seq
	conns := make([]connection, 0, len(state.conns))
	for _, conn := range state.conns {
		conns = append(conns, conn)
	}
	if msgType.Terminal() {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()

	env, err := protocol.NewEnvelope(msgType, sessionID, seq, payload)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		if err := conn.Send(ctx, env); err != nil {
			h.logger.Debug("failed to push session event", "session", sessionID, "type", string(msgType), "err", err)
		}
		if msgType.Terminal() {
			_ = conn.Close(ctx, string(msgType))
		}
	}
	return nil
}

// Watchers returns the number of watchers attached to sessionID.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.sessions[sessionID]
	if state == nil {
		return 0
	}
	return len(state.conns)
}
