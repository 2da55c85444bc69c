package fork

import (
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/apeiros/fork/pkg/pipe"
)

// childArg marks a re-executed process as a fork child. Checked by Init.
const childArg = "#fork-child"

// childFdBase is the first fd slot handed to the child; stdio occupies
// 0..2. The channel ends follow in fixed order (data read, data write,
// control write), present iff the governing flag is set. The child
// recomputes the same layout from the capability set in its argv.
const childFdBase = 3

// Start launches the child process: it allocates one pipe per negotiated
// channel, re-executes the current program with a marker argument, closes
// the child's pipe ends in the parent, and completes the handle with the
// child pid and the retained ends. The child never returns from Init; the
// parent returns immediately and the child runs asynchronously.
//
// Starting a handle twice is a programming error and panics.
func (h *Handle) Start() error {
	if h.stage != stageNew {
		panic("fork: handle started twice")
	}

	var pairs []*pipe.Pair
	closeAll := func() {
		for _, p := range pairs {
			p.Close()
		}
	}
	newPair := func() (*pipe.Pair, error) {
		p, err := pipe.New()
		if err != nil {
			closeAll()
			return nil, errors.Wrap(err, "start: allocate channel")
		}
		pairs = append(pairs, p)
		return p, nil
	}

	var toChild, fromChild, ctrl *pipe.Pair
	var err error
	if h.caps.Has(ToFork) {
		if toChild, err = newPair(); err != nil {
			return err
		}
	}
	if h.caps.Has(FromFork) {
		if fromChild, err = newPair(); err != nil {
			return err
		}
	}
	if h.caps.Has(Ctrl) {
		if ctrl, err = newPair(); err != nil {
			return err
		}
	}

	// child files: inherited stdio, then the child's ends from slot 3
	files := []*os.File{os.Stdin, os.Stdout, os.Stderr}
	if toChild != nil {
		files = append(files, toChild.R)
	}
	if fromChild != nil {
		files = append(files, fromChild.W)
	}
	if ctrl != nil {
		files = append(files, ctrl.W)
	}

	exe, err := os.Executable()
	if err != nil {
		closeAll()
		return errors.Wrap(err, "start: locate executable")
	}

	argv := []string{os.Args[0], childArg, h.name, strconv.Itoa(int(h.caps)), h.codecName}
	proc, err := os.StartProcess(exe, argv, &os.ProcAttr{
		Files: files,
		Env:   os.Environ(),
	})
	if err != nil {
		closeAll()
		return errors.Wrap(err, "start: start process")
	}

	// partition the ends: close the child's copies, retain the parent's
	var in, out, ctrlEnd *os.File
	if toChild != nil {
		toChild.R.Close()
		out = toChild.W
	}
	if fromChild != nil {
		fromChild.W.Close()
		in = fromChild.R
	}
	if ctrl != nil {
		ctrl.W.Close()
		ctrlEnd = ctrl.R
	}

	h.complete(RoleParent, proc.Pid, in, out, ctrlEnd)
	proc.Release()
	return nil
}
