package gate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const storeFilename = "state.json"

// Store persists gate sessions to disk.
type Store struct {
	mu sync.RWMutex

	// Sessions are keyed by the SHA-256 of their bearer token.
	Sessions map[string]Session `json:"sessions"`
}

// NewStore returns an initialized store.
func NewStore() *Store {
	return &Store{Sessions: make(map[string]Session)}
}

// LoadStore reads persisted state if present.
func LoadStore(dir string) (*Store, error) {
	path := filepath.Join(dir, storeFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(), nil
		}
		return nil, err
	}
	return LoadStoreFromBytes(data)
}

// LoadStoreFromBytes unmarshals store data and ensures maps are initialized.
func LoadStoreFromBytes(data []byte) (*Store, error) {
	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]Session)
	}
	for key, session := range s.Sessions {
		if session.TokenHash == "" {
			session.TokenHash = key
			s.Sessions[key] = session
		}
	}
	return &s, nil
}

// Save writes the store to disk.
func (s *Store) Save(dir string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, storeFilename), data)
}

// Len returns the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Sessions)
}
