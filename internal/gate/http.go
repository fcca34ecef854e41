package gate

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/protocol"
	"pkt.systems/vakt/internal/server"
)

const (
	wsReadLimit    = 4 << 10
	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 60 * time.Second
)

// DefaultMaxInactive is the server session inactivity window.
const DefaultMaxInactive = 5 * time.Minute

// Session end reasons, used for push payloads and metrics.
const (
	EndReasonInactive = "inactive"
	EndReasonLogout   = "logout"
	EndReasonRevoked  = "revoked"
	EndReasonUser     = "user-removed"
)

const (
	messageNoSession = "No active session"
	messageExtended  = "Session extended successfully"
)

// HTTPServer exposes the gate HTTP and WSS endpoints.
type HTTPServer struct {
	Store         *Store
	Users         *UserStore
	Authenticator *Authenticator
	Logger        pslog.Logger
	DataDir       string
	Hub           *Hub
	Metrics       *Metrics

	// MaxInactive is the inactivity window given to new sessions.
	MaxInactive time.Duration
	// TrustProxyHeaders keys the login limiter on forwarding headers
	// instead of the peer address.
	TrustProxyHeaders bool
	// Now overrides the clock, mainly for tests.
	Now func() time.Time

	limiter *loginLimiter
}

// NewHTTPServer constructs a gate HTTP server.
func NewHTTPServer(store *Store, users *UserStore, auth *Authenticator, logger pslog.Logger, hub *Hub) *HTTPServer {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &HTTPServer{
		Store:         store,
		Users:         users,
		Authenticator: auth,
		Logger:        logger,
		Hub:           hub,
		MaxInactive:   DefaultMaxInactive,
	}
}

// SetLoginRate limits login attempts per client IP. A non-positive rps or
// burst disables the limit.
func (s *HTTPServer) SetLoginRate(rps float64, burst int) {
	s.limiter = newLoginLimiter(rps, burst)
}

// Handler returns the HTTP handler for gate endpoints.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/api/session-status", s.handleSessionStatus)
	mux.HandleFunc("/api/extend-session", s.handleExtendSession)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/sessions", s.handleListSessions)
	mux.HandleFunc("/sessions/", s.handleSessionAction)
	mux.HandleFunc("/ws/session", s.handleWSSession)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	return mux
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.Users == nil || s.Store == nil {
		writeError(w, http.StatusInternalServerError, "user store unavailable")
		return
	}
	now := s.now()
	clientIP := server.ClientIP(r, s.TrustProxyHeaders)
	if !s.limiter.Allow(clientIP, now) {
		s.Metrics.RecordLogin("throttled")
		w.Header().Set("Retry-After", retryAfterSeconds(s.limiter.RetryAfter(clientIP, now)))
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	user, err := s.Authenticator.Validate(req.Username, req.Password, req.TOTP, now)
	if err != nil {
		s.Metrics.RecordLogin("rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	session, err := s.Store.CreateSession(user.Username, s.maxInactive(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session creation failed")
		return
	}
	if err := s.persist(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist state")
		return
	}
	s.Metrics.RecordLogin("ok")
	s.Metrics.SetActive(s.Store.Len())
	server.Annotate(w, "user", user.Username)
	s.logger(r.Context()).Info("session created", "user", user.Username, "session", session.ID)
	writeJSON(w, http.StatusOK, protocol.LoginResponse{
		SessionToken:       session.Token,
		SessionID:          session.ID,
		Username:           session.Username,
		ExpiresAt:          session.ExpiresAt(),
		MaxInactiveSeconds: int64(session.MaxInactive / time.Second),
	})
}

func (s *HTTPServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	session, err := s.authenticate(w, r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, protocol.StatusResponse{Authenticated: false, Message: messageNoSession})
		return
	}
	writeJSON(w, http.StatusOK, protocol.StatusResponse{
		Authenticated:       true,
		Username:            session.Username,
		SessionID:           session.ID,
		MaxInactiveInterval: int64(session.MaxInactive / time.Second),
		CreationTime:        session.CreatedAt,
		LastAccessedTime:    session.LastAccessedAt,
	})
}

func (s *HTTPServer) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	session, err := s.authenticate(w, r)
	if err != nil {
		s.Metrics.RecordExtension("rejected")
		writeJSON(w, http.StatusUnauthorized, protocol.ExtendResponse{Status: protocol.ExtendError, Message: messageNoSession})
		return
	}
	if err := s.persist(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist state")
		return
	}
	s.Metrics.RecordExtension("ok")
	_ = s.Hub.Publish(r.Context(), session.ID, protocol.MessageExtended, protocol.ExtendedPayload{ExtendedAt: session.LastAccessedAt})
	writeJSON(w, http.StatusOK, protocol.ExtendResponse{
		Status:       protocol.ExtendSuccess,
		Message:      messageExtended,
		Username:     session.Username,
		ExtendedTime: session.LastAccessedAt,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token, err := bearerToken(r)
	if err == nil && s.Store != nil {
		if session, ok := s.Store.Revoke(token); ok {
			server.Annotate(w, "user", session.Username)
			s.endSessions(r.Context(), EndReasonLogout, protocol.MessageLoggedOut, session)
			_ = s.persist()
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	current, err := s.authenticate(w, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sessions := s.Store.ListSessions(current.Username, s.now())
	resp := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		info := session.Info()
		info.Current = session.ID == current.ID
		resp = append(resp, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	current, err := s.authenticate(w, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	revoked, err := s.Store.RevokeByID(current.Username, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.endSessions(r.Context(), EndReasonRevoked, protocol.MessageLoggedOut, revoked)
	if err := s.persist(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *HTTPServer) handleWSSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.authenticate(w, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	ctx := r.Context()
	logger := s.logger(ctx).With("role", "watcher", "session", session.ID)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		return
	}
	conn.SetReadLimit(wsReadLimit)
	ws := newWSConn(newConnID(), session.ID, conn, logger)
	s.Hub.Register(ws)
	s.Metrics.AddWatchers(1)
	defer func() {
		s.Hub.Unregister(ws)
		s.Metrics.AddWatchers(-1)
		_ = ws.Close(ctx, "closing")
	}()

	env, err := protocol.NewEnvelope(protocol.MessageStatus, session.ID, 0, protocol.StatusPayload{
		Username:           session.Username,
		MaxInactiveSeconds: int64(session.MaxInactive / time.Second),
		CreatedAt:          session.CreatedAt,
		LastAccessedAt:     session.LastAccessedAt,
	})
	if err == nil {
		if err := ws.Send(ctx, env); err != nil {
			logger.Debug("failed to send status", "err", err)
			return
		}
	}
	logger.Debug("session watcher connected")

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(pingCtx, ws)

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (s *HTTPServer) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsPongTimeout)
			if err := conn.Ping(pingCtx); err != nil && conn.logger != nil {
				conn.logger.Debug("websocket ping failed", "err", err)
			}
			cancel()
		}
	}
}

// authenticate resolves the bearer session and records the access. An
// expired session is ended and announced to its watchers.
func (s *HTTPServer) authenticate(w http.ResponseWriter, r *http.Request) (Session, error) {
	token, err := bearerToken(r)
	if err != nil {
		return Session{}, err
	}
	if s.Store == nil {
		return Session{}, errors.New("store unavailable")
	}
	session, err := s.Store.Touch(token, s.now())
	if errors.Is(err, ErrSessionExpired) {
		s.endSessions(r.Context(), EndReasonInactive, protocol.MessageExpired, session)
		_ = s.persist()
		return Session{}, err
	}
	if err != nil {
		return Session{}, err
	}
	server.Annotate(w, "user", session.Username)
	return session, nil
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// endSessions announces ended sessions to their watchers and updates metrics.
func (s *HTTPServer) endSessions(ctx context.Context, reason string, msgType protocol.MessageType, sessions ...Session) {
	if len(sessions) == 0 {
		return
	}
	now := s.now()
	for _, session := range sessions {
		_ = s.Hub.Publish(context.WithoutCancel(ctx), session.ID, msgType, protocol.EndedPayload{Reason: reason, At: now})
		s.Logger.Info("session ended", "session", session.ID, "user", session.Username, "reason", reason)
	}
	s.Metrics.RecordEnded(reason, len(sessions))
	if s.Store != nil {
		s.Metrics.SetActive(s.Store.Len())
	}
}

// retryAfterSeconds renders d as a Retry-After value in whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(max(int(math.Ceil(d.Seconds())), 1))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: message})
}

func (s *HTTPServer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *HTTPServer) maxInactive() time.Duration {
	if s.MaxInactive > 0 {
		return s.MaxInactive
	}
	return DefaultMaxInactive
}

func (s *HTTPServer) persist() error {
	if s.Store == nil || s.DataDir == "" {
		return nil
	}
	if err := s.Store.Save(s.DataDir); err != nil {
		if s.Logger != nil {
			s.Logger.Error("failed to persist gate state", "err", err)
		}
		return err
	}
	return nil
}

func (s *HTTPServer) logger(ctx context.Context) pslog.Logger {
	if ctx == nil {
		return s.Logger
	}
	logger := pslog.Ctx(ctx)
	if logger != nil {
		return logger
	}
	return s.Logger
}
