package sessionapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrUnauthenticated reports that the gate has no live session for the
// client's token, or that no token is configured.
var ErrUnauthenticated = errors.New("not authenticated")

// StatusError is a non-2xx reply from the gate.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, msg)
}

// Unwrap maps 401 and 403 to ErrUnauthenticated.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthenticated
	}
	return nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
