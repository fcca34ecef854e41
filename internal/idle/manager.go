package idle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"
)

var (
	// ErrNotAuthenticated is returned when the server rejects the session.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrStatusUnavailable is returned when the session status probe could not reach the server.
	ErrStatusUnavailable = errors.New("session status unavailable")
	// ErrStatusRejected is returned when the server answered the status check
	// with an error that does not mean the session is gone.
	ErrStatusRejected = errors.New("session status rejected")
	// ErrDisposed is returned when a disposed Manager is started again.
	ErrDisposed = errors.New("idle manager disposed")
	// ErrExpired is returned when extending a session that has already been logged out.
	ErrExpired = errors.New("session expired")
	// ErrNotStarted is returned when extending through a Manager that is not running.
	ErrNotStarted = errors.New("idle manager not started")
)

// State is the idle state of a Manager.
type State int

// Manager states. Expired is terminal.
const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Manager. Zero durations take the defaults.
type Options struct {
	Timeout            time.Duration
	WarningLead        time.Duration
	PollInterval       time.Duration
	CountdownInterval  time.Duration
	ExtendFailureDelay time.Duration

	Clock     Clock
	Source    ActivitySource
	Presenter Presenter
	Session   SessionAPI
	Navigator Navigator
	Logger    pslog.Logger
}

// Default thresholds.
const (
	DefaultTimeout            = 5 * time.Minute
	DefaultWarningLead        = 1 * time.Minute
	DefaultPollInterval       = 10 * time.Second
	DefaultCountdownInterval  = 1 * time.Second
	DefaultExtendFailureDelay = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.WarningLead == 0 {
		o.WarningLead = DefaultWarningLead
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.CountdownInterval == 0 {
		o.CountdownInterval = DefaultCountdownInterval
	}
	if o.ExtendFailureDelay == 0 {
		o.ExtendFailureDelay = DefaultExtendFailureDelay
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.Presenter == nil {
		o.Presenter = nopPresenter{}
	}
	if o.Logger == nil {
		o.Logger = pslog.LoggerFromEnv()
	}
	return o
}

func (o Options) validate() error {
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if o.WarningLead < 0 || o.WarningLead >= o.Timeout {
		return fmt.Errorf("warning lead must be between 0 and timeout")
	}
	if o.PollInterval <= 0 || o.CountdownInterval <= 0 {
		return fmt.Errorf("poll and countdown intervals must be positive")
	}
	if o.ExtendFailureDelay < 0 {
		return fmt.Errorf("extend failure delay must not be negative")
	}
	if o.Session == nil {
		return fmt.Errorf("session api is required")
	}
	if o.Navigator == nil {
		return fmt.Errorf("navigator is required")
	}
	return nil
}

// Manager tracks user activity and expires an idle session. All state
// transitions are serialized by one mutex; network calls run outside it.
type Manager struct {
	opts   Options
	logger pslog.Logger

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	warningShown bool
	countdown    int
	countdownGen uint64
	started      bool
	disposed     bool
	loggedOut    bool

	poll          Timer
	countdownTick Timer
	pendingLogout Timer
	unsubscribe   func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates opts and returns an unstarted Manager.
func New(opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}, nil
}

// Start arms the poll timer, subscribes to activity and probes the server
// session. An unauthenticated probe logs out immediately; an unreachable
// server is only logged.
func (m *Manager) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if m.started || m.loggedOut {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.lastActivity = m.opts.Clock.Now()
	m.state = StateActive
	m.warningShown = false
	m.poll = m.opts.Clock.Every(m.opts.PollInterval, m.checkIdle)
	if m.opts.Source != nil {
		m.unsubscribe = m.opts.Source.Subscribe(m.Touch)
	}
	runCtx := m.ctx
	m.mu.Unlock()

	m.logger.Debug("idle guard started",
		"timeout", m.opts.Timeout.String(),
		"warning_lead", m.opts.WarningLead.String(),
		"poll_interval", m.opts.PollInterval.String(),
	)
	_ = m.CheckServer(runCtx)
	return nil
}

// CheckServer probes the server session and logs out if it is gone.
func (m *Manager) CheckServer(ctx context.Context) error {
	err := m.opts.Session.CheckStatus(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotAuthenticated) {
		m.logger.Info("server session no longer valid", "err", err)
		m.logout(ReasonServer)
		return err
	}
	m.logger.Warn("session status check failed", "err", err)
	return err
}

// Touch records an interaction. Untracked kinds and activity after logout
// are ignored.
func (m *Manager) Touch(a Activity) {
	if !a.Kind.Tracked() {
		return
	}
	at := a.At
	if at.IsZero() {
		at = m.opts.Clock.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.state == StateExpired {
		return
	}
	m.resetLocked(at)
}

func (m *Manager) resetLocked(at time.Time) {
	m.lastActivity = at
	m.warningShown = false
	m.stopCountdownLocked()
	if m.state == StateWarning {
		m.opts.Presenter.HideWarning()
	}
	m.state = StateActive
}

func (m *Manager) checkIdle() {
	now := m.opts.Clock.Now()
	m.mu.Lock()
	if !m.started || m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	remaining := m.opts.Timeout - now.Sub(m.lastActivity)
	if remaining <= 0 {
		m.mu.Unlock()
		m.logout(ReasonTimeout)
		return
	}
	if remaining <= m.opts.WarningLead && !m.warningShown {
		m.showWarningLocked(ceilSeconds(remaining))
		m.warningShown = true
	}
	m.mu.Unlock()
}

func (m *Manager) showWarningLocked(seconds int) {
	m.stopCountdownLocked()
	if m.state == StateWarning {
		m.opts.Presenter.HideWarning()
	}
	m.state = StateWarning
	m.countdown = seconds
	m.opts.Presenter.ShowWarning(seconds)

	m.countdownGen++
	gen := m.countdownGen
	m.countdownTick = m.opts.Clock.Every(m.opts.CountdownInterval, func() {
		m.tickCountdown(gen)
	})
}

func (m *Manager) tickCountdown(gen uint64) {
	m.mu.Lock()
	if m.state != StateWarning || gen != m.countdownGen {
		m.mu.Unlock()
		return
	}
	m.countdown--
	m.opts.Presenter.UpdateCountdown(m.countdown)
	if m.countdown > 0 {
		m.mu.Unlock()
		return
	}
	m.stopCountdownLocked()
	m.mu.Unlock()
	m.logout(ReasonCountdown)
}

func (m *Manager) stopCountdownLocked() {
	if m.countdownTick != nil {
		m.countdownTick.Stop()
		m.countdownTick = nil
	}
	m.countdownGen++
}

// Extend renews the server session. On success the idle clock restarts at
// the completion time; on failure an error notice is shown and logout
// follows after the configured delay, regardless of later activity.
func (m *Manager) Extend(ctx context.Context) error {
	m.mu.Lock()
	if err := m.extendableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	err := m.opts.Session.Extend(ctx)

	m.mu.Lock()
	// The Manager may have been stopped, disposed or logged out while the
	// request was in flight; none of those may be undone from here.
	if stateErr := m.extendableLocked(); stateErr != nil {
		m.mu.Unlock()
		if err != nil {
			return fmt.Errorf("extend session: %w", err)
		}
		return stateErr
	}
	if err == nil {
		m.resetLocked(m.opts.Clock.Now())
		m.opts.Presenter.Notify(Notice{Kind: NoticeSuccess, Message: MessageExtended})
		m.mu.Unlock()
		m.logger.Info("session extended")
		return nil
	}
	m.opts.Presenter.Notify(Notice{Kind: NoticeError, Message: MessageExtendFailed})
	if m.pendingLogout == nil {
		m.pendingLogout = m.opts.Clock.AfterFunc(m.opts.ExtendFailureDelay, func() {
			m.logout(ReasonExtendFailed)
		})
	}
	m.mu.Unlock()
	m.logger.Warn("session extension failed", "err", err, "logout_in", m.opts.ExtendFailureDelay.String())
	return fmt.Errorf("extend session: %w", err)
}

func (m *Manager) extendableLocked() error {
	switch {
	case m.disposed:
		return ErrDisposed
	case m.state == StateExpired:
		return ErrExpired
	case !m.started:
		return ErrNotStarted
	}
	return nil
}

// Logout ends the session at the user's request.
func (m *Manager) Logout(ctx context.Context) {
	m.logoutWith(ctx, ReasonUser)
}

// Expire ends the session because the server reported it gone.
func (m *Manager) Expire(ctx context.Context) {
	m.logoutWith(ctx, ReasonServer)
}

func (m *Manager) logout(reason Reason) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	m.logoutWith(ctx, reason)
}

func (m *Manager) logoutWith(ctx context.Context, reason Reason) {
	m.mu.Lock()
	if m.loggedOut {
		m.mu.Unlock()
		return
	}
	m.loggedOut = true
	if m.state == StateWarning {
		m.opts.Presenter.HideWarning()
	}
	m.state = StateExpired
	m.warningShown = false
	m.stopTimersLocked()
	m.mu.Unlock()

	m.logger.Info("logging out", "reason", string(reason))
	if err := m.opts.Navigator.Logout(context.WithoutCancel(ctx), reason); err != nil {
		m.logger.Warn("logout navigation failed", "err", err)
	}
	close(m.done)
}

func (m *Manager) stopTimersLocked() {
	if m.poll != nil {
		m.poll.Stop()
		m.poll = nil
	}
	m.stopCountdownLocked()
	if m.pendingLogout != nil {
		m.pendingLogout.Stop()
		m.pendingLogout = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Stop releases timers and the activity subscription without logging out.
// A stopped Manager may be started again.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if !m.started {
		return
	}
	m.started = false
	if m.state == StateWarning {
		m.opts.Presenter.HideWarning()
		m.state = StateActive
	}
	m.warningShown = false
	m.stopTimersLocked()
	if m.cancel != nil {
		m.cancel()
	}
}

// Dispose stops the Manager permanently.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.disposed = true
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastActivity returns the time of the most recent tracked interaction.
func (m *Manager) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// WarningShown reports whether the warning for the current idle period has been shown.
func (m *Manager) WarningShown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warningShown
}

// Remaining returns the time left before the idle timeout.
func (m *Manager) Remaining() time.Duration {
	now := m.opts.Clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateExpired {
		return 0
	}
	remaining := m.opts.Timeout - now.Sub(m.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Done is closed once the Manager has logged out.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
