// Package sessionapi is the HTTP and websocket client for a vakt gate.
package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/protocol"
)

// DefaultTimeout bounds each request when the caller does not supply a client.
const DefaultTimeout = 15 * time.Second

const maxErrorBody = 4 << 10

// Options configures a Client.
type Options struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
	Logger     pslog.Logger
}

// Client talks to one gate with one session token.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger pslog.Logger
}

// New returns a Client for opts.Endpoint.
func New(opts Options) (*Client, error) {
	base, err := NormalizeEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	return &Client{
		base:   base,
		token:  strings.TrimSpace(opts.Token),
		http:   httpClient,
		logger: logger,
	}, nil
}

// Endpoint returns the normalized base URL.
func (c *Client) Endpoint() string {
	return c.base
}

// Token returns the session token in use.
func (c *Client) Token() string {
	return c.token
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(token)
	return &clone
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", false, nil, nil)
}

// Login exchanges credentials for a session token. The returned client is
// not modified; use WithToken with the response token.
func (c *Client) Login(ctx context.Context, username, password, totp string) (protocol.LoginResponse, error) {
	if username == "" || password == "" || totp == "" {
		return protocol.LoginResponse{}, fmt.Errorf("username, password, and totp are required")
	}
	var out protocol.LoginResponse
	err := c.do(ctx, "login", http.MethodPost, "/auth/login", false, protocol.LoginRequest{
		Username: username,
		Password: password,
		TOTP:     totp,
	}, &out)
	if err != nil {
		return protocol.LoginResponse{}, err
	}
	if out.SessionToken == "" {
		return protocol.LoginResponse{}, fmt.Errorf("login: empty session token")
	}
	return out, nil
}

// Status queries GET /api/session-status. A rejected session returns an
// error wrapping ErrUnauthenticated. The call counts as session activity on
// the gate.
func (c *Client) Status(ctx context.Context) (protocol.StatusResponse, error) {
	var out protocol.StatusResponse
	if err := c.do(ctx, "session status", http.MethodGet, "/api/session-status", true, nil, &out); err != nil {
		return protocol.StatusResponse{}, err
	}
	if !out.Authenticated {
		return out, fmt.Errorf("session status: %w", ErrUnauthenticated)
	}
	return out, nil
}

// Extend calls POST /api/extend-session.
func (c *Client) Extend(ctx context.Context) (protocol.ExtendResponse, error) {
	var out protocol.ExtendResponse
	if err := c.do(ctx, "extend session", http.MethodPost, "/api/extend-session", true, nil, &out); err != nil {
		return protocol.ExtendResponse{}, err
	}
	if out.Status != protocol.ExtendSuccess {
		return out, fmt.Errorf("extend session: %s", out.Message)
	}
	return out, nil
}

// Logout ends the session on the gate. Logging out without a token is a
// no-op.
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	return c.do(ctx, "logout", http.MethodPost, "/logout", true, nil, nil)
}

// Sessions lists the caller's live sessions.
func (c *Client) Sessions(ctx context.Context) ([]protocol.SessionInfo, error) {
	var out []protocol.SessionInfo
	if err := c.do(ctx, "list sessions", http.MethodGet, "/sessions", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeSession ends one of the caller's sessions by ID.
func (c *Client) RevokeSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	return c.do(ctx, "revoke session", http.MethodDelete, "/sessions/"+url.PathEscape(id), true, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, auth bool, in, out any) error {
	if auth && c.token == "" {
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	se := &StatusError{Op: op, StatusCode: resp.StatusCode, RetryAfter: retryAfter(resp.Header)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		se.Message = payload.Error
		if se.Message == "" {
			se.Message = payload.Message
		}
	}
	c.logger.Debug("gate request failed", "op", op, "status", resp.StatusCode, "message", se.Message)
	return se
}
