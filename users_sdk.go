package vakt

import (
	"fmt"
	"time"

	"pkt.systems/vakt/internal/gate"
)

// User-file errors.
var (
	ErrUserExists   = gate.ErrUserExists
	ErrUserNotFound = gate.ErrUserNotFound
)

// UserSummary is the user info returned by list operations.
type UserSummary struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// UserCredentials carries secrets generated by a user operation. They are
// shown once; only hashes and the TOTP secret are stored.
type UserCredentials struct {
	Username   string    `json:"username"`
	Password   string    `json:"password,omitempty"`
	TOTPSecret string    `json:"totp_secret,omitempty"`
	TOTPURL    string    `json:"totp_url,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

// UsersList lists the users in the users file.
func UsersList(path string) ([]UserSummary, error) {
	store, err := gate.LoadUserStore(path)
	if err != nil {
		return nil, err
	}
	users := store.List()
	out := make([]UserSummary, 0, len(users))
	for _, user := range users {
		out = append(out, UserSummary{Username: user.Username, CreatedAt: user.CreatedAt})
	}
	return out, nil
}

// UsersAdd creates a user. An empty password is generated.
func UsersAdd(path, username, password string) (UserCredentials, error) {
	return updateUsers(path, func(store *gate.UserStore) (gate.Credentials, error) {
		return store.CreateUser(username, password, time.Now().UTC())
	})
}

// UsersChpasswd sets a user's password. An empty password is generated.
func UsersChpasswd(path, username, password string) (UserCredentials, error) {
	return updateUsers(path, func(store *gate.UserStore) (gate.Credentials, error) {
		return store.ChangePassword(username, password)
	})
}

// UsersRotateTOTP issues a new TOTP secret for a user.
func UsersRotateTOTP(path, username string) (UserCredentials, error) {
	return updateUsers(path, func(store *gate.UserStore) (gate.Credentials, error) {
		return store.RotateTOTP(username)
	})
}

// UsersDelete removes a user. A running server ends the user's sessions
// when it reloads the file.
func UsersDelete(path, username string) error {
	_, err := updateUsers(path, func(store *gate.UserStore) (gate.Credentials, error) {
		user, err := store.RemoveUser(username)
		return gate.Credentials{User: user}, err
	})
	return err
}

func updateUsers(path string, op func(*gate.UserStore) (gate.Credentials, error)) (UserCredentials, error) {
	if path == "" {
		return UserCredentials{}, fmt.Errorf("users file is required")
	}
	store, err := gate.LoadUserStore(path)
	if err != nil {
		return UserCredentials{}, err
	}
	creds, err := op(store)
	if err != nil {
		return UserCredentials{}, err
	}
	if err := store.Save(path); err != nil {
		return UserCredentials{}, err
	}
	return UserCredentials{
		Username:   creds.User.Username,
		Password:   creds.Password,
		TOTPSecret: creds.TOTPSecret,
		TOTPURL:    creds.TOTPURL,
		CreatedAt:  creds.User.CreatedAt,
	}, nil
}
