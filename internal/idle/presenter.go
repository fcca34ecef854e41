package idle

import "context"

// NoticeKind classifies a transient notice.
type NoticeKind string

// Notice kinds.
const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a short message shown to the user and dismissed automatically.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Notice texts used by the Manager.
const (
	MessageExtended     = "Session extended."
	MessageExtendFailed = "Session extension failed. Please log in again."
)

// Presenter renders the expiry warning and notices. Calls arrive in
// transition order from the Manager and must not call back into it.
type Presenter interface {
	ShowWarning(seconds int)
	UpdateCountdown(seconds int)
	HideWarning()
	Notify(n Notice)
}

// SessionAPI is the server round-trip used for status probes and extension.
// CheckStatus returns an error wrapping ErrNotAuthenticated when the server
// rejects the session.
type SessionAPI interface {
	CheckStatus(ctx context.Context) error
	Extend(ctx context.Context) error
}

// Reason explains why a logout happened.
type Reason string

// Logout reasons.
const (
	ReasonTimeout      Reason = "timeout"
	ReasonCountdown    Reason = "countdown"
	ReasonUser         Reason = "user"
	ReasonExtendFailed Reason = "extend-failed"
	ReasonServer       Reason = "server"
)

// Navigator performs the logout navigation.
type Navigator interface {
	Logout(ctx context.Context, reason Reason) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, reason Reason) error

// Logout calls f.
func (f NavigatorFunc) Logout(ctx context.Context, reason Reason) error {
	return f(ctx, reason)
}

type nopPresenter struct{}

func (nopPresenter) ShowWarning(int)     {}
func (nopPresenter) UpdateCountdown(int) {}
func (nopPresenter) HideWarning()        {}
func (nopPresenter) Notify(Notice)       {}
