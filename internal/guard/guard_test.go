package guard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/creack/pty"

	"pkt.systems/vakt/internal/idle"
)

func openTestTerminal(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	if err != nil {
		t.Fatalf("pty.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = master.Close()
		_ = slave.Close()
	})
	_ = pty.Setsize(master, &pty.Winsize{Cols: 80, Rows: 24})
	return master, slave
}

type runOutcome struct {
	res Result
	err error
}

func startRunner(ctx context.Context, r *Runner) <-chan runOutcome {
	done := make(chan runOutcome, 1)
	go func() {
		res, err := r.Run(ctx)
		done <- runOutcome{res: res, err: err}
	}()
	return done
}

func TestRunLogsOutWhenGateEndsSession(t *testing.T) {
	g := newTestGate(t)
	master, slave := openTestTerminal(t)
	var logoutReason atomic.Value

	r := New(Options{
		Command:    []string{"/bin/sh", "-c", "echo READY; sleep 30"},
		Client:     g.client,
		Stdin:      slave,
		Stdout:     slave,
		DisableRaw: true,
		OnLogout:   func(reason idle.Reason) { logoutReason.Store(reason) },
	})
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	done := startRunner(ctx, r)

	if err := readUntil(master, "READY", 5*time.Second); err != nil {
		t.Fatalf("readUntil: %v", err)
	}
	g.waitWatchers(t, 1)
	if err := g.anon.WithToken(g.client.Token()).Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("Run: %v", out.err)
		}
		if !out.res.LoggedOut || out.res.Reason != idle.ReasonServer || !out.res.Guarded {
			t.Fatalf("result = %+v", out.res)
		}
	case <-ctx.Done():
		t.Fatalf("guard did not end after gate logout")
	}
	if got, _ := logoutReason.Load().(idle.Reason); got != idle.ReasonServer {
		t.Fatalf("OnLogout reason = %q", got)
	}
}

func TestRunReturnsCommandExitCode(t *testing.T) {
	g := newTestGate(t)
	_, slave := openTestTerminal(t)
	r := New(Options{
		Command:    []string{"/bin/sh", "-c", "exit 3"},
		Client:     g.client,
		Stdin:      slave,
		Stdout:     slave,
		DisableRaw: true,
	})
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	select {
	case out := <-startRunner(ctx, r):
		if out.err != nil {
			t.Fatalf("Run: %v", out.err)
		}
		if out.res.LoggedOut || out.res.ExitCode != 3 || !out.res.Guarded {
			t.Fatalf("result = %+v", out.res)
		}
	case <-ctx.Done():
		t.Fatalf("guard did not return after command exit")
	}
	if _, err := g.client.Status(t.Context()); err != nil {
		t.Fatalf("command exit must not log out: %v", err)
	}
}

func TestRunRejectsUnauthenticated(t *testing.T) {
	g := newTestGate(t)
	_, slave := openTestTerminal(t)
	r := New(Options{
		Command:    []string{"/bin/sh", "-c", "exit 0"},
		Client:     g.anon.WithToken("bogus"),
		Stdin:      slave,
		Stdout:     slave,
		DisableRaw: true,
	})
	_, err := r.Run(t.Context())
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestRunFailsOpenWhenGateUnreachable(t *testing.T) {
	g := newTestGate(t)
	client := g.client
	g.srv.Close()
	_, slave := openTestTerminal(t)
	r := New(Options{
		Command:    []string{"/bin/sh", "-c", "exit 4"},
		Client:     client,
		Stdin:      slave,
		Stdout:     slave,
		DisableRaw: true,
	})
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	res, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Guarded || res.ExitCode != 4 {
		t.Fatalf("result = %+v", res)
	}
}

// typeFor writes a key to the guarded terminal every few milliseconds.
func typeFor(t *testing.T, master *os.File, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if _, err := master.Write([]byte("a\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func runWithKeepalive(t *testing.T, interval time.Duration) int64 {
	t.Helper()
	g := newTestGate(t)
	master, slave := openTestTerminal(t)
	r := New(Options{
		Command:           []string{"/bin/sh", "-c", "echo READY; cat >/dev/null"},
		Client:            g.client,
		KeepaliveInterval: interval,
		DisableWatch:      true,
		Stdin:             slave,
		Stdout:            slave,
		DisableRaw:        true,
	})
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	done := startRunner(ctx, r)

	if err := readUntil(master, "READY", 5*time.Second); err != nil {
		t.Fatalf("readUntil: %v", err)
	}
	before := g.statusCalls.Load()
	typeFor(t, master, 300*time.Millisecond)
	touches := g.statusCalls.Load() - before

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("guard did not stop")
	}
	return touches
}

func TestRunKeepaliveTouchesGateWhileTyping(t *testing.T) {
	if touches := runWithKeepalive(t, 20*time.Millisecond); touches == 0 {
		t.Fatalf("expected keepalive status calls while typing")
	}
}

func TestRunZeroKeepaliveDisablesTouches(t *testing.T) {
	if touches := runWithKeepalive(t, 0); touches != 0 {
		t.Fatalf("status calls with keepalive disabled = %d, want 0", touches)
	}
}

func TestRunRequiresClient(t *testing.T) {
	if _, err := New(Options{}).Run(t.Context()); err == nil {
		t.Fatalf("expected error without client")
	}
}

func readUntil(file *os.File, want string, timeout time.Duration) error {
	if err := syscall.SetNonblock(int(file.Fd()), true); err != nil {
		return err
	}
	defer func() {
		_ = syscall.SetNonblock(int(file.Fd()), false)
	}()

	var buf bytes.Buffer
	deadline := time.Now().Add(timeout)
	tmp := make([]byte, 1024)

	for time.Now().Before(deadline) {
		n, err := file.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
			if strings.Contains(buf.String(), want) {
				return nil
			}
		}
		if err != nil {
			if wouldBlock(err) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("read error: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %q; got %q", want, buf.String())
}
