package gate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when a session token or id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the inactivity window has elapsed.
	ErrSessionExpired = errors.New("session expired")
)

// CreateSession generates and stores a new session for username.
func (s *Store) CreateSession(username string, maxInactive time.Duration, now time.Time) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("store is nil")
	}
	if username == "" {
		return Session{}, fmt.Errorf("username is required")
	}
	if maxInactive <= 0 {
		return Session{}, fmt.Errorf("max inactive interval must be positive")
	}
	token, err := randomToken(defaultTokenBytes)
	if err != nil {
		return Session{}, err
	}
	key := hashToken(token)
	session := Session{
		ID:             uuid.NewString(),
		TokenHash:      key,
		Username:       username,
		CreatedAt:      now,
		LastAccessedAt: now,
		MaxInactive:    maxInactive,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Sessions == nil {
		s.Sessions = make(map[string]Session)
	}
	s.Sessions[key] = session
	session.Token = token
	return session, nil
}

// Touch validates a token and records an access at now. Expired sessions
// are removed and reported as ErrSessionExpired.
func (s *Store) Touch(token string, now time.Time) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("store is nil")
	}
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	key := hashToken(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[key]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if session.IsExpired(now) {
		delete(s.Sessions, key)
		return session, ErrSessionExpired
	}
	session.LastAccessedAt = now
	s.Sessions[key] = session
	return session, nil
}

// Lookup returns a session by token without touching it.
func (s *Store) Lookup(token string, now time.Time) (Session, error) {
	if s == nil {
		return Session{}, fmt.Errorf("store is nil")
	}
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.Sessions[hashToken(token)]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if session.IsExpired(now) {
		return session, ErrSessionExpired
	}
	return session, nil
}

// Revoke removes a session by token. Unknown tokens are not an error.
func (s *Store) Revoke(token string) (Session, bool) {
	key := hashToken(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[key]
	if ok {
		delete(s.Sessions, key)
	}
	return session, ok
}

// RevokeByID removes one of username's sessions by id.
func (s *Store) RevokeByID(username, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, session := range s.Sessions {
		if session.ID != id {
			continue
		}
		if session.Username != username {
			return Session{}, ErrSessionNotFound
		}
		delete(s.Sessions, key)
		return session, nil
	}
	return Session{}, ErrSessionNotFound
}

// RevokeSessionsForUsername removes every session belonging to username.
func (s *Store) RevokeSessionsForUsername(username string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var revoked []Session
	for key, session := range s.Sessions {
		if session.Username == username {
			revoked = append(revoked, session)
			delete(s.Sessions, key)
		}
	}
	return revoked
}

// ListSessions returns username's live sessions, oldest first.
func (s *Store) ListSessions(username string, now time.Time) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []Session
	for _, session := range s.Sessions {
		if session.Username == username && !session.IsExpired(now) {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Sweep removes and returns every session expired at now.
func (s *Store) Sweep(now time.Time) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []Session
	for key, session := range s.Sessions {
		if session.IsExpired(now) {
			expired = append(expired, session)
			delete(s.Sessions, key)
		}
	}
	return expired
}
