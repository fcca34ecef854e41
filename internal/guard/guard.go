// Package guard runs a command in a PTY under the idle-session manager.
package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/idle"
	"pkt.systems/vakt/internal/sessionapi"
)

const outputDrainTimeout = 250 * time.Millisecond

// ErrNotLoggedIn is returned when the gate rejects the stored session.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrGateRejected is returned when the gate answers the startup status check
// with an error other than 401 or 403.
var ErrGateRejected = errors.New("gate rejected session status check")

// Options configures a guarded run.
type Options struct {
	// Command is the argv to run. Empty runs the user's login shell.
	Command []string
	Term    string
	Client  *sessionapi.Client

	Timeout            time.Duration
	WarningLead        time.Duration
	PollInterval       time.Duration
	CountdownInterval  time.Duration
	ExtendFailureDelay time.Duration
	NoticeDuration     time.Duration
	// KeepaliveInterval is how often local activity is forwarded to the
	// gate. Zero disables the keepalive.
	KeepaliveInterval time.Duration
	// DisableWatch skips the websocket subscription.
	DisableWatch bool

	Stdin      *os.File
	Stdout     *os.File
	DisableRaw bool
	Logger     pslog.Logger
	// OnLogout runs after the gate logout call, before the command is
	// terminated.
	OnLogout func(reason idle.Reason)
}

// Result describes how a guarded run ended.
type Result struct {
	// LoggedOut is set when the idle guard ended the session.
	LoggedOut bool
	Reason    idle.Reason
	// Guarded is false when the gate was unreachable at start and the
	// command ran without idle tracking.
	Guarded  bool
	ExitCode int
}

// Runner executes one guarded command.
type Runner struct {
	opts   Options
	logger pslog.Logger

	outMu   sync.Mutex
	ptyFile *os.File
	writeMu sync.Mutex

	reasonMu  sync.Mutex
	reason    idle.Reason
	loggedOut bool
}

// New constructs a Runner.
func New(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Run starts the command and blocks until it exits or the session ends.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.opts.Client == nil {
		return Result{}, fmt.Errorf("gate client is required")
	}
	r.logger = r.opts.Logger
	if r.logger == nil {
		r.logger = pslog.Ctx(ctx)
	}
	if r.logger == nil {
		r.logger = pslog.LoggerFromEnv()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stdin, stdout := r.stdin(), r.stdout()
	out := lockedWriter{mu: &r.outMu, w: stdout}
	presenter := NewTerminalPresenter(out, func() (int, int) { return termSizeAny(stdout, stdin) }, r.opts.NoticeDuration)
	defer presenter.Close()

	session := sessionAdapter{client: r.opts.Client}
	navigator := idle.NavigatorFunc(func(navCtx context.Context, reason idle.Reason) error {
		defer cancel()
		r.setReason(reason)
		logoutCtx, logoutCancel := context.WithTimeout(navCtx, requestTimeout)
		defer logoutCancel()
		err := r.opts.Client.Logout(logoutCtx)
		if r.opts.OnLogout != nil {
			r.opts.OnLogout(reason)
		}
		return err
	})
	feed := idle.NewFeed()
	mgr, err := idle.Bootstrap(ctx, idle.Options{
		Timeout:            r.opts.Timeout,
		WarningLead:        r.opts.WarningLead,
		PollInterval:       r.opts.PollInterval,
		CountdownInterval:  r.opts.CountdownInterval,
		ExtendFailureDelay: r.opts.ExtendFailureDelay,
		Source:             feed,
		Presenter:          presenter,
		Session:            session,
		Navigator:          navigator,
		Logger:             r.logger.With("component", "idle"),
	})
	switch {
	case errors.Is(err, idle.ErrNotAuthenticated):
		return Result{}, ErrNotLoggedIn
	case errors.Is(err, idle.ErrStatusRejected):
		return Result{}, fmt.Errorf("%w: %v", ErrGateRejected, err)
	case errors.Is(err, idle.ErrStatusUnavailable):
		r.logger.Warn("gate unreachable; running without idle guard", "endpoint", r.opts.Client.Endpoint())
		fmt.Fprintf(os.Stderr, "vakt: gate %s unreachable, session is not guarded\n", r.opts.Client.Endpoint())
	case err != nil:
		return Result{}, err
	}
	if mgr != nil {
		defer mgr.Dispose()
		if !r.opts.DisableWatch {
			go watchSession(ctx, r.opts.Client, mgr, r.logger.With("component", "watch"))
		}
		go runKeepalive(ctx, r.opts.KeepaliveInterval, mgr)
	}
	if ctx.Err() != nil {
		return r.result(mgr, 0), nil
	}

	var rawState *term.State
	if !r.opts.DisableRaw {
		rawState, err = term.MakeRaw(int(stdin.Fd()))
		if err != nil {
			return Result{}, fmt.Errorf("stdin is not a terminal")
		}
		defer func() { _ = term.Restore(int(stdin.Fd()), rawState) }()
	}

	ptyFile, ttyFile, cmd, err := startCommand(r.opts.Command, r.opts.Term)
	if err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}
	// The child holds its own copy; closing ours lets the master see EOF
	// once the child exits.
	_ = ttyFile.Close()
	r.ptyFile = ptyFile
	defer ptyFile.Close()
	if cols, rows := termSizeAny(stdout, stdin); cols > 0 && rows > 0 {
		_ = resizePTY(ptyFile, cols, rows)
	}
	_ = setNonblock(stdin, true)
	defer func() { _ = setNonblock(stdin, false) }()

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGHUP)
	defer stopSignals()
	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	defer signal.Stop(sigwinch)

	router := inputRouter{warningVisible: presenter.WarningVisible}
	if mgr != nil {
		router.extend = func() {
			go func() {
				if err := mgr.Extend(sigCtx); err != nil {
					r.logger.Debug("extend from keyboard failed", "err", err)
				}
			}()
		}
		router.logout = func() { go mgr.Logout(sigCtx) }
		router.activity = func() { feed.Emit(idle.Activity{Kind: idle.KindKeyPress}) }
	}

	var wg sync.WaitGroup
	localErr := make(chan error, 1)
	reportErr := func(err error) {
		select {
		case localErr <- err:
		default:
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.copyInput(sigCtx, stdin, router, reportErr)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.copyOutput(sigCtx, stdout, presenter, reportErr)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-sigCtx.Done():
				return
			case <-sigwinch:
				if cols, rows := termSizeAny(stdout, stdin); cols > 0 && rows > 0 {
					_ = resizePTY(ptyFile, cols, rows)
					presenter.Redraw()
				}
			}
		}
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	exitCode := 0
	select {
	case <-sigCtx.Done():
		_ = cmd.Process.Kill()
		<-exited
	case err := <-exited:
		exitCode = exitStatus(err)
		select {
		case <-localErr:
		case <-time.After(outputDrainTimeout):
		}
	case err := <-localErr:
		r.logger.Debug("terminal stream ended", "err", err)
		_ = cmd.Process.Kill()
		exitCode = exitStatus(<-exited)
	}
	cancel()
	wg.Wait()
	return r.result(mgr, exitCode), nil
}

func (r *Runner) copyInput(ctx context.Context, stdin *os.File, router inputRouter, reportErr func(error)) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := stdin.Read(buf)
		if err != nil {
			if wouldBlock(err) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				r.logger.Debug("stdin read error", "err", err)
			}
			reportErr(err)
			return
		}
		data := router.route(buf[:n])
		if len(data) == 0 {
			continue
		}
		if err := r.writePTY(ctx, data); err != nil {
			r.logger.Debug("pty write error", "err", err)
			reportErr(err)
			return
		}
	}
}

func (r *Runner) copyOutput(ctx context.Context, stdout io.Writer, presenter *TerminalPresenter, reportErr func(error)) {
	buf := make([]byte, 32*1024)
	for {
		n, err := readPTY(ctx, r.ptyFile, buf)
		if err != nil {
			if wouldBlock(err) {
				continue
			}
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				r.logger.Debug("pty read error", "err", err)
			}
			reportErr(err)
			return
		}
		r.outMu.Lock()
		werr := writeAll(ctx, stdout, buf[:n])
		r.outMu.Unlock()
		if werr != nil {
			reportErr(werr)
			return
		}
		presenter.Redraw()
	}
}

func (r *Runner) writePTY(ctx context.Context, data []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return writeAll(ctx, r.ptyFile, data)
}

func (r *Runner) setReason(reason idle.Reason) {
	r.reasonMu.Lock()
	defer r.reasonMu.Unlock()
	r.reason = reason
	r.loggedOut = true
}

func (r *Runner) result(mgr *idle.Manager, exitCode int) Result {
	r.reasonMu.Lock()
	defer r.reasonMu.Unlock()
	return Result{
		LoggedOut: r.loggedOut,
		Reason:    r.reason,
		Guarded:   mgr != nil,
		ExitCode:  exitCode,
	}
}

func (r *Runner) stdin() *os.File {
	if r.opts.Stdin != nil {
		return r.opts.Stdin
	}
	return os.Stdin
}

func (r *Runner) stdout() *os.File {
	if r.opts.Stdout != nil {
		return r.opts.Stdout
	}
	return os.Stdout
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
