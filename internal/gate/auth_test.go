package gate

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totpOpts)
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}
	return code
}

func TestAuthenticatorValidate(t *testing.T) {
	users := NewUserStore()
	user, err := SeedTestUser(users)
	if err != nil {
		t.Fatalf("SeedTestUser: %v", err)
	}
	now := time.Now()
	code := totpCode(t, user.TOTPSecret, now)

	auth := NewAuthenticator(users)
	if _, err := auth.Validate(user.Username, DefaultTestPassword, code, now); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := auth.Validate(user.Username, "bad", code, now); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password err = %v", err)
	}
	if _, err := auth.Validate(user.Username, DefaultTestPassword, "000000", now.Add(10*time.Minute)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad code err = %v", err)
	}
	if _, err := auth.Validate("nobody", DefaultTestPassword, code, now); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}
}

func TestSeedTestUserIsIdempotent(t *testing.T) {
	users := NewUserStore()
	first, err := SeedTestUser(users)
	if err != nil {
		t.Fatalf("SeedTestUser: %v", err)
	}
	second, err := SeedTestUser(users)
	if err != nil {
		t.Fatalf("SeedTestUser: %v", err)
	}
	if first.PasswordHash != second.PasswordHash {
		t.Fatalf("seed should not replace an existing user")
	}
}

func TestEnrolledTOTPMatchesLoginCheck(t *testing.T) {
	users := NewUserStore()
	now := time.Now()
	creds, err := users.CreateUser("alice", "", now)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	key, err := otp.NewKeyFromURL(creds.TOTPURL)
	if err != nil {
		t.Fatalf("NewKeyFromURL: %v", err)
	}
	if key.Issuer() != "Vakt" || key.AccountName() != "alice" {
		t.Fatalf("key issuer/account = %q/%q", key.Issuer(), key.AccountName())
	}
	if key.Period() != 30 || key.Digits() != otp.DigitsSix || key.Secret() != creds.TOTPSecret {
		t.Fatalf("enrolled key = period %d digits %v", key.Period(), key.Digits())
	}
	if len(creds.Password) != 24 {
		t.Fatalf("generated password %q, want 24 characters", creds.Password)
	}
	code, err := TOTPCode(creds.TOTPSecret, now)
	if err != nil {
		t.Fatalf("TOTPCode: %v", err)
	}
	if _, err := NewAuthenticator(users).Validate("alice", creds.Password, code, now); err != nil {
		t.Fatalf("Validate with enrolled secret: %v", err)
	}
}
