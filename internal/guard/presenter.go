package guard

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"pkt.systems/vakt/internal/idle"
)

// DefaultNoticeDuration is how long a notice stays on screen.
const DefaultNoticeDuration = 3 * time.Second

const (
	escSaveCursor    = "\x1b7"
	escRestoreCursor = "\x1b8"
	escClearLine     = "\x1b[2K"
	escReset         = "\x1b[0m"
	escWarning       = "\x1b[1;37;41m"
	escSuccess       = "\x1b[30;42m"
	escError         = "\x1b[1;37;41m"
)

// TerminalPresenter draws the expiry warning and notices as a one-line
// overlay on the terminal's bottom row.
type TerminalPresenter struct {
	out            io.Writer
	size           func() (cols, rows int)
	noticeDuration time.Duration

	mu          sync.Mutex
	warningUp   bool
	warning     int
	notice      *idle.Notice
	noticeTimer *time.Timer
	closed      bool
}

// NewTerminalPresenter writes overlays to out. size reports the current
// terminal dimensions.
func NewTerminalPresenter(out io.Writer, size func() (int, int), noticeDuration time.Duration) *TerminalPresenter {
	if noticeDuration <= 0 {
		noticeDuration = DefaultNoticeDuration
	}
	return &TerminalPresenter{out: out, size: size, noticeDuration: noticeDuration}
}

// ShowWarning replaces any visible warning with a fresh countdown.
func (p *TerminalPresenter) ShowWarning(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warningUp = true
	p.warning = max(seconds, 0)
	p.drawLocked()
}

// UpdateCountdown redraws the warning with the new remaining seconds.
func (p *TerminalPresenter) UpdateCountdown(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.warningUp {
		return
	}
	p.warning = max(seconds, 0)
	p.drawLocked()
}

// HideWarning removes the warning, leaving any notice in place.
func (p *TerminalPresenter) HideWarning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.warningUp {
		return
	}
	p.warningUp = false
	p.warning = 0
	p.drawLocked()
}

// Notify shows n until the notice duration elapses.
func (p *TerminalPresenter) Notify(n idle.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.notice = &n
	if p.noticeTimer != nil {
		p.noticeTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(p.noticeDuration, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.noticeTimer != timer {
			return
		}
		p.noticeTimer = nil
		p.notice = nil
		if !p.closed {
			p.drawLocked()
		}
	})
	p.noticeTimer = timer
	p.drawLocked()
}

// WarningVisible reports whether the countdown is on screen.
func (p *TerminalPresenter) WarningVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warningUp
}

// Redraw repaints the overlay after the guarded command wrote to the
// screen.
func (p *TerminalPresenter) Redraw() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.warningUp && p.notice == nil {
		return
	}
	p.drawLocked()
}

// Close clears the overlay and stops pending notice timers.
func (p *TerminalPresenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.noticeTimer != nil {
		p.noticeTimer.Stop()
		p.noticeTimer = nil
	}
	visible := p.warningUp || p.notice != nil
	p.warningUp = false
	p.warning = 0
	p.notice = nil
	if visible {
		p.drawLocked()
	}
	p.closed = true
}

func (p *TerminalPresenter) drawLocked() {
	if p.closed {
		return
	}
	cols, rows := p.size()
	if cols <= 0 || rows <= 0 {
		return
	}
	var b strings.Builder
	b.WriteString(escSaveCursor)
	fmt.Fprintf(&b, "\x1b[%d;1H", rows)
	b.WriteString(escClearLine)
	switch {
	case p.warningUp:
		b.WriteString(escWarning)
		b.WriteString(centerLine(warningText(p.warning), cols))
		b.WriteString(escReset)
	case p.notice != nil:
		if p.notice.Kind == idle.NoticeError {
			b.WriteString(escError)
		} else {
			b.WriteString(escSuccess)
		}
		b.WriteString(centerLine(p.notice.Message, cols))
		b.WriteString(escReset)
	}
	b.WriteString(escRestoreCursor)
	_, _ = io.WriteString(p.out, b.String())
}

func warningText(seconds int) string {
	unit := "seconds"
	if seconds == 1 {
		unit = "second"
	}
	return fmt.Sprintf("Your session will expire in %d %s due to inactivity.  [e] extend  [l] log out", seconds, unit)
}

// centerLine pads or truncates s to exactly cols display cells.
func centerLine(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	w := runewidth.StringWidth(s)
	if w > cols {
		s = runewidth.Truncate(s, cols, "…")
		w = runewidth.StringWidth(s)
	}
	left := (cols - w) / 2
	right := cols - w - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}
