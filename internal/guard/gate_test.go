package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/vakt/internal/gate"
	"pkt.systems/vakt/internal/sessionapi"
)

type testGate struct {
	srv       *httptest.Server
	gate      *gate.HTTPServer
	anon      *sessionapi.Client
	client    *sessionapi.Client
	sessionID string
	// statusCalls counts session-status requests seen by the gate.
	statusCalls atomic.Int64
}

func newTestGate(t *testing.T) *testGate {
	t.Helper()
	users := gate.NewUserStore()
	if _, err := gate.SeedTestUser(users); err != nil {
		t.Fatalf("SeedTestUser: %v", err)
	}
	gs := gate.NewHTTPServer(gate.NewStore(), users, gate.NewAuthenticator(users), nil, nil)
	g := &testGate{gate: gs}
	handler := gs.Handler()
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/api/session-status") {
			g.statusCalls.Add(1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(g.srv.Close)
	anon, err := sessionapi.New(sessionapi.Options{Endpoint: g.srv.URL})
	if err != nil {
		t.Fatalf("sessionapi.New: %v", err)
	}
	g.anon = anon
	g.client, g.sessionID = g.login(t)
	return g
}

func (g *testGate) login(t *testing.T) (*sessionapi.Client, string) {
	t.Helper()
	code, err := gate.TOTPCode(gate.DefaultTestTOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("TOTPCode: %v", err)
	}
	resp, err := g.anon.Login(t.Context(), gate.DefaultTestUsername, gate.DefaultTestPassword, code)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return g.anon.WithToken(resp.SessionToken), resp.SessionID
}

// waitWatchers blocks until the gate has n watchers for the session.
func (g *testGate) waitWatchers(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for g.gate.Hub.Watchers(g.sessionID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("watchers = %d, want %d", g.gate.Hub.Watchers(g.sessionID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeExpirer struct {
	last      time.Time
	checkErr  error
	checks    int
	expired   chan struct{}
	expireHit int
}

func newFakeExpirer() *fakeExpirer {
	return &fakeExpirer{expired: make(chan struct{}, 1)}
}

func (f *fakeExpirer) Expire(context.Context) {
	f.expireHit++
	select {
	case f.expired <- struct{}{}:
	default:
	}
}

func (f *fakeExpirer) CheckServer(context.Context) error {
	f.checks++
	return f.checkErr
}

func (f *fakeExpirer) LastActivity() time.Time {
	return f.last
}
