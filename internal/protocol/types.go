package protocol

import (
	"encoding/json"
	"time"
)

// MessageType identifies a session push message.
type MessageType string

// Message types pushed on the session websocket.
const (
	MessageStatus    MessageType = "status"
	MessageExtended  MessageType = "extended"
	MessageExpired   MessageType = "expired"
	MessageLoggedOut MessageType = "logged_out"
	MessageError     MessageType = "error"
)

// Terminal reports whether the message ends the session.
func (t MessageType) Terminal() bool {
	return t == MessageExpired || t == MessageLoggedOut
}

// Envelope wraps all protocol messages.
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope constructs an envelope with a marshaled payload.
func NewEnvelope(msgType MessageType, sessionID string, seq uint64, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		raw = data
	}
	return Envelope{Type: msgType, SessionID: sessionID, Seq: seq, Payload: raw}, nil
}

// DecodePayload unmarshals the payload into the provided struct.
func (e Envelope) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, out)
}

// StatusPayload describes the session as the server sees it.
type StatusPayload struct {
	Username           string    `json:"username"`
	MaxInactiveSeconds int64     `json:"max_inactive_seconds"`
	CreatedAt          time.Time `json:"created_at"`
	LastAccessedAt     time.Time `json:"last_accessed_at"`
}

// ExtendedPayload announces a renewed inactivity window.
type ExtendedPayload struct {
	ExtendedAt time.Time `json:"extended_at"`
}

// EndedPayload explains why a session ended.
type EndedPayload struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// ErrorPayload communicates error details.
type ErrorPayload struct {
	Message string `json:"message"`
}
