package gate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Default test credentials for local development.
const (
	DefaultTestUsername   = "test"
	DefaultTestPassword   = "test"
	DefaultTestTOTPSecret = "JBSWY3DPEHPK3PXP"
)

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// totpOpts are shared by validation and by tests generating codes.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// totpIssuer labels enrolled secrets in authenticator apps.
const totpIssuer = "Vakt"

// newTOTPSecret enrolls username with the same period, digits and algorithm
// the login check validates against. It returns the base32 secret and the
// otpauth:// URL for QR enrollment.
func newTOTPSecret(username string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// TOTPCode returns the code a user's authenticator shows at the given time.
func TOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totpOpts)
}

// Authenticator validates login credentials.
type Authenticator struct {
	Users *UserStore
}

// NewAuthenticator returns an Authenticator.
func NewAuthenticator(users *UserStore) *Authenticator {
	return &Authenticator{Users: users}
}

// Validate checks username/password/TOTP.
func (a *Authenticator) Validate(username, password, code string, now time.Time) (User, error) {
	if a == nil || a.Users == nil {
		return User{}, ErrInvalidCredentials
	}
	user, ok := a.Users.Get(strings.TrimSpace(username))
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), user.TOTPSecret, now, totpOpts)
	if err != nil || !valid {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// SeedTestUser ensures the test user exists in the store.
func SeedTestUser(store *UserStore) (User, error) {
	if store == nil {
		return User{}, errors.New("user store is nil")
	}
	if user, ok := store.Get(DefaultTestUsername); ok {
		return user, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultTestPassword), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Username:     DefaultTestUsername,
		PasswordHash: string(hash),
		TOTPSecret:   DefaultTestTOTPSecret,
		CreatedAt:    time.Now().UTC(),
	}
	store.Upsert(user)
	return user, nil
}
