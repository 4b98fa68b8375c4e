// Package ptyproc owns the child program's PTY pair and process: starting
// it, resizing it, and reaping it with the server's escalating-signal
// shutdown procedure. Adapted from the teacher's
// internal/virtualterminal.VT, stripped of the screen-buffer tracking a
// broker that only splices a few literal escape sequences doesn't need.
package ptyproc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Process owns the PTY master and the child command started on its slave.
type Process struct {
	Ptm *os.File
	Cmd *exec.Cmd
}

// StartErr is returned by Start when the child's program image could not
// be loaded. Go's exec.Cmd reports this synchronously to the parent
// before any process image change happens, unlike the original C
// implementation (forkpty + execvp), where the failure is discovered
// after the fork, inside the child, which then reports it over the PTY
// itself. Since no child process and no live PTY slave exist yet in the
// Go case, there is nothing to read the EXERR report from; the broker
// detects StartErr and synthesizes the report directly (see
// internal/broker), preserving the wire contract of §4.2/§4.5 without a
// process that never started.
type StartErr struct {
	Errno int
	Err   error
}

func (e *StartErr) Error() string { return e.Err.Error() }
func (e *StartErr) Unwrap() error { return e.Err }

// Start forks the program on a fresh PTY sized to cols x rows, with the
// given working directory (empty means inherit). On exec failure it
// returns a *StartErr wrapping the errno, per spec §4.5/§4.7's
// child-exec-failure taxonomy. A failure to set up the PTY itself is
// returned as a plain error.
func Start(name string, args []string, dir string, cols, rows int) (*Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		var lookErr *exec.Error
		var pathErr *os.PathError
		isExecErr := errors.As(err, &lookErr) || (errors.As(err, &pathErr) && pathErr.Op == "fork/exec")
		if !isExecErr {
			return nil, fmt.Errorf("start program %q: %w", name, err)
		}
		errno := 0
		if errno2, ok := errnoOf(err); ok {
			errno = errno2
		}
		return nil, &StartErr{Errno: errno, Err: fmt.Errorf("start program %q: %w", name, err)}
	}
	return &Process{Ptm: ptm, Cmd: cmd}, nil
}

func errnoOf(err error) (int, bool) {
	for err != nil {
		if e, ok := err.(syscall.Errno); ok {
			return int(e), true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}

// Resize presents a new window size to the PTY. A failure here is fatal
// to the server per §4.3.
func (p *Process) Resize(cols, rows int) error {
	if err := pty.Setsize(p.Ptm, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return fmt.Errorf("ioctl(TIOCSWINSZ): %w", err)
	}
	return nil
}

// PID returns the child's process ID.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// Reap implements the §4.7 shutdown reaping procedure: if externally
// initiated, send SIGTERM and wait up to 1s; then a non-blocking reap; if
// the child is still present, SIGTERM again and wait up to 3s; then
// SIGKILL and wait unconditionally. Returns the one-byte exit code: the
// child's exit status if it exited normally, else 0.
func (p *Process) Reap(externallyInitiated bool) byte {
	pid := p.PID()
	if pid == 0 {
		return 0
	}

	if externallyInitiated {
		_ = unix.Kill(pid, unix.SIGTERM)
		time.Sleep(1 * time.Second)
	}

	if wpid, ws, _ := nonblockingWait(pid); wpid > 0 {
		return exitCode(ws)
	}

	_ = unix.Kill(pid, unix.SIGTERM)
	time.Sleep(3 * time.Second)

	if wpid, ws, _ := nonblockingWait(pid); wpid > 0 {
		return exitCode(ws)
	}

	_ = unix.Kill(pid, unix.SIGKILL)
	var ws unix.WaitStatus
	_, _ = unix.Wait4(pid, &ws, 0, nil)
	return exitCode(ws)
}

func nonblockingWait(pid int) (int, unix.WaitStatus, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	return wpid, ws, err
}

func exitCode(ws unix.WaitStatus) byte {
	if ws.Exited() {
		return byte(ws.ExitStatus())
	}
	return 0
}
