package gate

import (
	"time"

	"pkt.systems/vakt/internal/protocol"
)

// User represents a gate user account.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	TOTPSecret   string    `json:"totp_secret"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an authenticated server session. It stays valid while
// LastAccessedAt+MaxInactive lies in the future.
type Session struct {
	ID        string `json:"id"`
	TokenHash string `json:"token_hash"`
	// Token is only populated on the value returned by CreateSession.
	Token          string        `json:"-"`
	Username       string        `json:"username"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	MaxInactive    time.Duration `json:"max_inactive"`
}

// ExpiresAt returns the instant the session becomes invalid without further access.
func (s Session) ExpiresAt() time.Time {
	return s.LastAccessedAt.Add(s.MaxInactive)
}

// IsExpired reports whether the inactivity window has elapsed.
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

// SessionInfo is the public view of a session.
type SessionInfo = protocol.SessionInfo

// Info returns the public view of s.
func (s Session) Info() SessionInfo {
	return SessionInfo{
		ID:             s.ID,
		Username:       s.Username,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		ExpiresAt:      s.ExpiresAt(),
	}
}
