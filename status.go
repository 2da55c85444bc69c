package fork

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Wait blocks until the child exits, then caches its status, drains the
// control channel and returns the decoded exit code. Subsequent calls
// return the cache without touching the OS.
func (h *Handle) Wait() (int, error) {
	switch h.stage {
	case stageNew:
		return 0, ErrNotRunning
	case stageExited:
		return h.exitCode, nil
	}
	ws, err := h.wait4(0)
	if err != nil {
		return 0, err
	}
	h.finishExit(ws)
	return h.exitCode, nil
}

// TryWait reaps without blocking. done is false while the child is still
// running; that is not an error.
func (h *Handle) TryWait() (done bool, err error) {
	switch h.stage {
	case stageNew:
		return false, ErrNotRunning
	case stageExited:
		return true, nil
	}
	var ws unix.WaitStatus
	pid, err := unix.Wait4(h.pid, &ws, unix.WNOHANG, nil)
	for err == unix.EINTR {
		pid, err = unix.Wait4(h.pid, &ws, unix.WNOHANG, nil)
	}
	if err != nil {
		h.checkReapErr(err)
		return false, errors.Wrapf(err, "wait4 pid %d", h.pid)
	}
	if pid == 0 {
		return false, nil
	}
	h.finishExit(ws)
	return true, nil
}

func (h *Handle) wait4(options int) (unix.WaitStatus, error) {
	var ws unix.WaitStatus
	_, err := unix.Wait4(h.pid, &ws, options, nil)
	for err == unix.EINTR {
		_, err = unix.Wait4(h.pid, &ws, options, nil)
	}
	if err != nil {
		h.checkReapErr(err)
		return ws, errors.Wrapf(err, "wait4 pid %d", h.pid)
	}
	return ws, nil
}

// checkReapErr panics on ECHILD with no cached status: nothing else may
// reap this pid, so the process table no longer matching the handle is a
// violated assumption, not a recoverable condition.
func (h *Handle) checkReapErr(err error) {
	if err == unix.ECHILD {
		panic(fmt.Sprintf("fork: pid %d was reaped outside this handle", h.pid))
	}
}

// finishExit caches the reaped status, moves the handle to its terminal
// stage and performs the one-time control channel drain.
func (h *Handle) finishExit(ws unix.WaitStatus) {
	h.status = ws
	h.exitCode = decodeStatus(ws)
	h.stage = stageExited
	if h.ctrlR != nil {
		if err := h.drain(""); err != nil {
			panic(fmt.Sprintf("fork: drain control channel: %v", err))
		}
	}
}

// decodeStatus maps a raw wait status to a conventional exit code: the
// exit status for a normal exit, 128+signal for a signalled child.
func decodeStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return -1
	}
}

// ExitStatus blocks until the child has exited and returns its decoded
// exit code. It fails with ErrNotRunning before launch.
func (h *Handle) ExitStatus() (int, error) {
	return h.Wait()
}

// ExitCode is the non-blocking exit status query: ok is false while the
// child has not yet been reaped. Like the blocking variant it fails with
// ErrNotRunning before launch; the variants differ only in how they report
// "not yet exited".
func (h *Handle) ExitCode() (code int, ok bool, err error) {
	done, err := h.TryWait()
	if err != nil {
		return 0, false, err
	}
	if !done {
		return 0, false, nil
	}
	return h.exitCode, true, nil
}

// RawStatus returns the cached wait status after the child has been
// reaped.
func (h *Handle) RawStatus() (unix.WaitStatus, bool) {
	return h.status, h.stage == stageExited
}

// Alive reports whether the child is launched and not yet reaped. Before
// launch it is a bare probe and reports false without error.
func (h *Handle) Alive() bool {
	if h.stage != stageRunning {
		return false
	}
	done, err := h.TryWait()
	if err != nil {
		return false
	}
	return !done
}

// Dead is the negation of Alive for a launched handle. An unlaunched
// handle is neither alive nor dead.
func (h *Handle) Dead() bool {
	if h.stage == stageNew {
		return false
	}
	return !h.Alive()
}
