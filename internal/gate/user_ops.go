package gate

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists indicates a duplicate username.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates a missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameRequired indicates a missing username.
	ErrUsernameRequired = errors.New("username is required")
	// ErrUsernameInvalid indicates a username with whitespace or control characters.
	ErrUsernameInvalid = errors.New("username must not contain whitespace")
)

// Credentials carries freshly generated secrets. Only the fields produced
// by the operation are set; secrets are shown once and never stored in
// clear text.
type Credentials struct {
	User       User
	Password   string
	TOTPSecret string
	TOTPURL    string
}

// generatedPasswordBytes sizes passwords made up for users created without one.
const generatedPasswordBytes = 15

func cleanUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrUsernameRequired
	}
	if strings.ContainsFunc(username, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return "", ErrUsernameInvalid
	}
	return username, nil
}

func hashPassword(password string) (string, string, error) {
	if strings.TrimSpace(password) == "" {
		generated, err := randomToken(generatedPasswordBytes)
		if err != nil {
			return "", "", err
		}
		password = generated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return password, string(hash), nil
}

// CreateUser adds a user. An empty password is replaced by a generated one;
// the TOTP secret is always generated.
func (s *UserStore) CreateUser(username, password string, now time.Time) (Credentials, error) {
	username, err := cleanUsername(username)
	if err != nil {
		return Credentials{}, err
	}
	if _, exists := s.Get(username); exists {
		return Credentials{}, ErrUserExists
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	password, hash, err := hashPassword(password)
	if err != nil {
		return Credentials{}, err
	}
	secret, url, err := newTOTPSecret(username)
	if err != nil {
		return Credentials{}, err
	}
	user := User{
		Username:     username,
		PasswordHash: hash,
		TOTPSecret:   secret,
		CreatedAt:    now,
	}
	s.Upsert(user)
	return Credentials{User: user, Password: password, TOTPSecret: secret, TOTPURL: url}, nil
}

// RotateTOTP regenerates a user's TOTP secret.
func (s *UserStore) RotateTOTP(username string) (Credentials, error) {
	user, err := s.existing(username)
	if err != nil {
		return Credentials{}, err
	}
	secret, url, err := newTOTPSecret(user.Username)
	if err != nil {
		return Credentials{}, err
	}
	user.TOTPSecret = secret
	s.Upsert(user)
	return Credentials{User: user, TOTPSecret: secret, TOTPURL: url}, nil
}

// ChangePassword sets a user's password, generating one when empty.
func (s *UserStore) ChangePassword(username, password string) (Credentials, error) {
	user, err := s.existing(username)
	if err != nil {
		return Credentials{}, err
	}
	password, hash, err := hashPassword(password)
	if err != nil {
		return Credentials{}, err
	}
	user.PasswordHash = hash
	s.Upsert(user)
	return Credentials{User: user, Password: password}, nil
}

// RemoveUser deletes a user by username.
func (s *UserStore) RemoveUser(username string) (User, error) {
	username, err := cleanUsername(username)
	if err != nil {
		return User{}, err
	}
	user, ok := s.Delete(username)
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) existing(username string) (User, error) {
	username, err := cleanUsername(username)
	if err != nil {
		return User{}, err
	}
	user, ok := s.Get(username)
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}
