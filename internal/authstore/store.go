package authstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// State is the client's persisted login: which gate it talks to and the
// session token that gate issued.
type State struct {
	Endpoint           string    `json:"endpoint"`
	Username           string    `json:"username,omitempty"`
	SessionID          string    `json:"session_id,omitempty"`
	SessionToken       string    `json:"session_token"`
	MaxInactiveSeconds int       `json:"max_inactive_seconds,omitempty"`
	LoggedInAt         time.Time `json:"logged_in_at,omitzero"`
}

// Authenticated reports whether a session token is present. Whether the
// gate still honours it is only known after a status round-trip.
func (s State) Authenticated() bool {
	return s.SessionToken != ""
}

// MaxInactive returns the server's idle window as a duration.
func (s State) MaxInactive() time.Duration {
	return time.Duration(s.MaxInactiveSeconds) * time.Second
}

// Cleared returns the state with all session fields dropped, keeping the
// endpoint so a later login can reuse it.
func (s State) Cleared() State {
	return State{Endpoint: s.Endpoint}
}

// Load reads auth state from disk.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// LoadOptional reads auth state, returning an empty state when the file
// does not exist.
func LoadOptional(path string) (State, error) {
	state, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	return state, err
}

// Save writes auth state to disk with owner-only permissions.
func Save(path string, state State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Clear removes the session from the state file while keeping the endpoint.
func Clear(path string) error {
	state, err := LoadOptional(path)
	if err != nil {
		return err
	}
	return Save(path, state.Cleared())
}
