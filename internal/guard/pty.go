package guard

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"os/user"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// startCommand launches argv on a new PTY as a session leader with the PTY
// as its controlling terminal.
func startCommand(argv []string, termName string) (*os.File, *os.File, *exec.Cmd, error) {
	if len(argv) == 0 {
		argv = []string{loginShell()}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	if termName != "" {
		cmd.Env = append(cmd.Env, "TERM="+termName)
	}
	cmd.Env = append(cmd.Env, "VAKT_GUARDED=1")

	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, nil, err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	if err := cmd.Start(); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, nil, err
	}
	return master, slave, cmd, nil
}

func loginShell() string {
	if u, err := user.Current(); err == nil && u != nil && u.Uid != "" {
		if shell, err := shellFromPasswd(u.Uid); err == nil && shell != "" {
			return shell
		}
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

func resizePTY(ptyFile *os.File, cols, rows int) error {
	if ptyFile == nil || cols <= 0 || rows <= 0 {
		return nil
	}
	return pty.Setsize(ptyFile, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func termSize(file *os.File) (int, int) {
	if file == nil {
		return 0, 0
	}
	cols, rows, err := term.GetSize(int(file.Fd()))
	if err != nil {
		return 0, 0
	}
	return cols, rows
}

func termSizeAny(files ...*os.File) (int, int) {
	for _, file := range files {
		if cols, rows := termSize(file); cols > 0 && rows > 0 {
			return cols, rows
		}
	}
	return 0, 0
}

func setNonblock(file *os.File, on bool) error {
	if file == nil {
		return nil
	}
	return syscall.SetNonblock(int(file.Fd()), on)
}

func wouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// writeAll retries short and non-blocking writes until data is written or
// ctx ends.
func writeAll(ctx context.Context, w io.Writer, data []byte) error {
	for len(data) > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := w.Write(data)
		data = data[n:]
		if err != nil && !wouldBlock(err) {
			return err
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	return nil
}
