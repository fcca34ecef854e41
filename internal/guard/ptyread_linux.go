//go:build linux

package guard

import (
	"context"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const ptyPollMillis = 50

// readPTY waits for the PTY to become readable so cancellation is noticed
// while the child is quiet.
func readPTY(ctx context.Context, file *os.File, buf []byte) (int, error) {
	if file == nil {
		return 0, io.EOF
	}
	pollfds := []unix.PollFd{{Fd: int32(file.Fd()), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if _, err := unix.Poll(pollfds, ptyPollMillis); err != nil {
			if err == syscall.EINTR {
				continue
			}
			return 0, err
		}
		revents := pollfds[0].Revents
		if revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) == 0 {
			continue
		}
		return file.Read(buf)
	}
}
