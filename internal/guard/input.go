package guard

import (
	"io"
	"sync"
)

// inputRouter decides what a chunk of keyboard input means. While the
// warning is visible a lone action key extends or logs out and is not
// forwarded; anything else is activity for the guarded command.
type inputRouter struct {
	warningVisible func() bool
	extend         func()
	logout         func()
	activity       func()
}

// route returns the bytes to forward to the PTY.
func (r inputRouter) route(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	if len(data) == 1 && r.warningVisible != nil && r.warningVisible() {
		switch data[0] {
		case 'e', 'E':
			if r.extend != nil {
				r.extend()
			}
			return nil
		case 'l', 'L':
			if r.logout != nil {
				r.logout()
			}
			return nil
		}
	}
	if r.activity != nil {
		r.activity()
	}
	return data
}

// lockedWriter serializes overlay writes with the PTY output copy.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
