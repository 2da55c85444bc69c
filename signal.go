package fork

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Terminate asks the child to exit with SIGTERM.
func (h *Handle) Terminate() error {
	return h.Signal(unix.SIGTERM)
}

// Kill forcefully terminates the child with SIGKILL.
func (h *Handle) Kill() error {
	return h.Signal(unix.SIGKILL)
}

// Signal forwards sig to the child process. It requires a launched handle
// and never blocks or touches the control channel; delivery is advisory
// at the OS level.
func (h *Handle) Signal(sig os.Signal) error {
	if h.stage == stageNew {
		return ErrNotRunning
	}
	s, ok := sig.(unix.Signal)
	if !ok {
		return errors.Errorf("signal: unsupported signal type %T", sig)
	}
	return errors.Wrapf(unix.Kill(h.pid, s), "signal pid %d", h.pid)
}

// SignalName forwards the signal with the given name, e.g. "SIGHUP".
func (h *Handle) SignalName(name string) error {
	sig := unix.SignalNum(name)
	if sig == 0 {
		return errors.Errorf("signal: unknown signal %q", name)
	}
	return h.Signal(sig)
}
