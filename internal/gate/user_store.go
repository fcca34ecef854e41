package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// UserStore holds user accounts and persists them to a JSON file.
type UserStore struct {
	mu sync.RWMutex

	Users map[string]User `json:"users"`
}

// NewUserStore returns an initialized user store.
func NewUserStore() *UserStore {
	return &UserStore{Users: make(map[string]User)}
}

// LoadUserStore reads users from path. A missing file yields an empty store.
func LoadUserStore(path string) (*UserStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewUserStore(), nil
		}
		return nil, err
	}
	return LoadUserStoreFromBytes(data)
}

// LoadUserStoreFromBytes parses user store data.
func LoadUserStoreFromBytes(data []byte) (*UserStore, error) {
	var store UserStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, err
	}
	store.Users = normalizeUsers(store.Users)
	return &store, nil
}

func normalizeUsers(users map[string]User) map[string]User {
	out := make(map[string]User, len(users))
	for username, user := range users {
		if user.Username == "" {
			user.Username = username
		}
		out[username] = user
	}
	return out
}

// Save writes the store to path through a temporary file so watchers never
// observe a partial write.
func (s *UserStore) Save(path string) error {
	if s == nil {
		return fmt.Errorf("user store is nil")
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// ReplaceUsers swaps the users map.
func (s *UserStore) ReplaceUsers(users map[string]User) {
	if s == nil {
		return
	}
	users = normalizeUsers(users)
	s.mu.Lock()
	s.Users = users
	s.mu.Unlock()
}

// ReloadFromDisk replaces users with the data in the file.
func (s *UserStore) ReloadFromDisk(path string) error {
	if s == nil {
		return fmt.Errorf("user store is nil")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loaded, err := LoadUserStoreFromBytes(data)
	if err != nil {
		return err
	}
	s.ReplaceUsers(loaded.Users)
	return nil
}

// Get retrieves a user by username.
func (s *UserStore) Get(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.Users[username]
	return user, ok
}

// Upsert inserts or updates a user.
func (s *UserStore) Upsert(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Users == nil {
		s.Users = make(map[string]User)
	}
	s.Users[user.Username] = user
}

// Delete removes a user by username.
func (s *UserStore) Delete(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.Users[username]
	if ok {
		delete(s.Users, username)
	}
	return user, ok
}

// Len returns the number of users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Users)
}

// List returns users sorted by username.
func (s *UserStore) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.Users))
	for _, user := range s.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users
}
