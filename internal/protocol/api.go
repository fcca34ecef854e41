package protocol

import "time"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTP     string `json:"totp"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	SessionToken       string    `json:"session_token"`
	SessionID          string    `json:"session_id"`
	Username           string    `json:"username"`
	ExpiresAt          time.Time `json:"expires_at"`
	MaxInactiveSeconds int64     `json:"max_inactive_seconds"`
}

// StatusResponse is returned by GET /api/session-status. Unauthenticated
// responses carry only Authenticated=false and a message.
type StatusResponse struct {
	Authenticated       bool      `json:"authenticated"`
	Username            string    `json:"username,omitempty"`
	SessionID           string    `json:"session_id,omitempty"`
	MaxInactiveInterval int64     `json:"max_inactive_interval,omitempty"`
	CreationTime        time.Time `json:"creation_time,omitzero"`
	LastAccessedTime    time.Time `json:"last_accessed_time,omitzero"`
	Message             string    `json:"message,omitempty"`
}

// Extend statuses.
const (
	ExtendSuccess = "success"
	ExtendError   = "error"
)

// ExtendResponse is returned by POST /api/extend-session.
type ExtendResponse struct {
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	Username     string    `json:"username,omitempty"`
	ExtendedTime time.Time `json:"extended_time,omitzero"`
}

// SessionInfo is the public view of a session. The token is never listed.
type SessionInfo struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current,omitempty"`
}

// ErrorResponse is the body of every error reply that has no richer shape.
type ErrorResponse struct {
	Error string `json:"error"`
}
