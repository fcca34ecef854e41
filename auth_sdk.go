package vakt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/authstore"
	"pkt.systems/vakt/internal/sessionapi"
	"pkt.systems/vakt/internal/tlsmgr"
)

// AuthState is the persisted login.
type AuthState = authstore.State

// ErrUnauthenticated reports a missing or rejected session token.
var ErrUnauthenticated = sessionapi.ErrUnauthenticated

// ClientOptions locates the gate and the stored login.
type ClientOptions struct {
	// Endpoint overrides the endpoint stored with the login.
	Endpoint string
	AuthPath string
	// TLSDir holds the local CA trusted in addition to the system roots.
	TLSDir string
	Logger pslog.Logger
}

// LoginOptions contains the inputs for login.
type LoginOptions struct {
	ClientOptions
	Username string
	Password string
	TOTP     string
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.AuthPath == "" {
		o.AuthPath = DefaultAuthPath()
	}
	if o.TLSDir == "" {
		o.TLSDir = DefaultTLSDir()
	}
	if o.Logger == nil {
		o.Logger = pslog.LoggerFromEnv()
	}
	return o
}

// OpenClient loads the stored login and returns a gate client for it. An
// explicit endpoint must match the one the login was made against.
func OpenClient(opts ClientOptions) (*sessionapi.Client, AuthState, error) {
	opts = opts.withDefaults()
	state, err := authstore.LoadOptional(opts.AuthPath)
	if err != nil {
		return nil, AuthState{}, fmt.Errorf("load auth: %w", err)
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = state.Endpoint
	}
	if endpoint == "" {
		return nil, AuthState{}, fmt.Errorf("endpoint is required")
	}
	normalized, err := sessionapi.NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, AuthState{}, err
	}
	token := state.SessionToken
	if state.Endpoint != "" && state.Endpoint != normalized {
		if state.Authenticated() && opts.Endpoint != "" {
			return nil, AuthState{}, fmt.Errorf("logged in to %s, not %s", state.Endpoint, normalized)
		}
		token = ""
	}
	httpClient, err := tlsmgr.NewHTTPClient(opts.TLSDir, sessionapi.DefaultTimeout)
	if err != nil {
		return nil, AuthState{}, err
	}
	client, err := sessionapi.New(sessionapi.Options{
		Endpoint:   normalized,
		Token:      token,
		HTTPClient: httpClient,
		Logger:     opts.Logger.With("component", "gate-client"),
	})
	if err != nil {
		return nil, AuthState{}, err
	}
	state.Endpoint = normalized
	return client, state, nil
}

// Login authenticates against the gate and stores the session token.
func Login(ctx context.Context, opts LoginOptions) (AuthState, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return AuthState{}, fmt.Errorf("endpoint is required")
	}
	if opts.Username == "" || opts.Password == "" || opts.TOTP == "" {
		return AuthState{}, fmt.Errorf("username, password, and totp are required")
	}
	copts := opts.ClientOptions.withDefaults()
	normalized, err := sessionapi.NormalizeEndpoint(opts.Endpoint)
	if err != nil {
		return AuthState{}, err
	}
	httpClient, err := tlsmgr.NewHTTPClient(copts.TLSDir, sessionapi.DefaultTimeout)
	if err != nil {
		return AuthState{}, err
	}
	client, err := sessionapi.New(sessionapi.Options{Endpoint: normalized, HTTPClient: httpClient, Logger: copts.Logger})
	if err != nil {
		return AuthState{}, err
	}
	out, err := client.Login(ctx, opts.Username, opts.Password, opts.TOTP)
	if err != nil {
		return AuthState{}, err
	}
	state := AuthState{
		Endpoint:           normalized,
		Username:           out.Username,
		SessionID:          out.SessionID,
		SessionToken:       out.SessionToken,
		MaxInactiveSeconds: int(out.MaxInactiveSeconds),
		LoggedInAt:         time.Now().UTC(),
	}
	if err := SaveAuth(copts.AuthPath, state); err != nil {
		return AuthState{}, err
	}
	copts.Logger.Info("logged in", "endpoint", normalized, "user", state.Username, "session", state.SessionID)
	return state, nil
}

// Logout ends the stored session on the gate and forgets the token. The
// local token is dropped even when the gate cannot be reached.
func Logout(ctx context.Context, opts ClientOptions) error {
	opts = opts.withDefaults()
	stored, err := authstore.LoadOptional(opts.AuthPath)
	if err != nil {
		return fmt.Errorf("load auth: %w", err)
	}
	if !stored.Authenticated() {
		return nil
	}
	client, state, err := OpenClient(opts)
	if err != nil {
		return err
	}
	remoteErr := client.Logout(ctx)
	if err := authstore.Clear(opts.AuthPath); err != nil {
		return err
	}
	if remoteErr != nil {
		return fmt.Errorf("gate logout: %w", remoteErr)
	}
	opts.Logger.Info("logged out", "endpoint", state.Endpoint)
	return nil
}

// LoadAuth loads auth state from disk.
func LoadAuth(path string) (AuthState, error) {
	return authstore.Load(path)
}

// SaveAuth saves auth state to disk.
func SaveAuth(path string, state AuthState) error {
	return authstore.Save(path, state)
}

// ClearAuth drops the stored session token.
func ClearAuth(path string) error {
	return authstore.Clear(path)
}
