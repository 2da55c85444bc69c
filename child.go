package fork

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/pkg/errors"
)

// Init hands control to the child runtime when the current process is a
// re-executed fork child; in any other process it is a no-op. Call it at
// the top of main (or TestMain), after all Register calls. In the child
// it never returns.
func Init() {
	if len(os.Args) != 5 || os.Args[1] != childArg {
		return
	}
	childMain(os.Args[2], os.Args[3], os.Args[4])
}

// childMain rebuilds the handle from the inherited file descriptors and
// runs the user work. Exits the process on every path.
func childMain(name, capString, codecName string) {
	n, err := strconv.Atoi(capString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fork_child: invalid capability string %q\n", capString)
		os.Exit(1)
	}
	caps := Capability(n).normalize()

	work, ok := lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "fork_child: no work registered under %q (Register must run before Init)\n", name)
		os.Exit(1)
	}

	c, ok := lookupCodec(codecName)
	if !ok {
		fmt.Fprintf(os.Stderr, "fork_child: no codec registered under %q (RegisterCodec must run before Init)\n", codecName)
		os.Exit(1)
	}

	// pick up the ends at the fixed slots laid out by Start; the parent's
	// copies were never inherited, so nothing to close here
	fd := childFdBase
	nextFd := func(label string) *os.File {
		f := os.NewFile(uintptr(fd), label)
		fd++
		return f
	}
	var in, out, ctrl *os.File
	if caps.Has(ToFork) {
		in = nextFd("fork-data-r")
	}
	if caps.Has(FromFork) {
		out = nextFd("fork-data-w")
	}
	if caps.Has(Ctrl) {
		ctrl = nextFd("fork-ctrl-w")
	}

	h := &Handle{caps: caps, name: name, work: work, codec: c, codecName: codecName}
	h.complete(RoleChild, os.Getpid(), in, out, ctrl)

	os.Exit(h.run())
}

// run invokes the work exactly once and delivers its outcome through the
// control channel. The deferred finalize guard emits the death notice and
// closes every owned end on all exit paths, including a panic out of
// outcome encoding itself.
func (h *Handle) run() (code int) {
	defer h.finalize()

	result, err := h.invoke()

	// process-control conditions pass through, bypassing outcome encoding
	var exit *ExitRequest
	if errors.As(err, &exit) {
		return exit.Code
	}

	if err == nil {
		if !h.caps.Has(Return) {
			return 0
		}
		encErr := h.emitValue(tagReturnValue, result)
		if encErr == nil {
			return 0
		}
		// an unencodable return value degrades to the exception path so
		// the parent is not left blocking on a frame that never comes
		err = errors.Wrapf(encErr, "return value of type %T not encodable", result)
	}

	if h.caps.Has(Exceptions) {
		if encErr := h.emitValue(tagException, err); encErr != nil {
			// graded fallback: synthesize a serializable stand-in; if even
			// that cannot be written, outcome delivery is best effort
			_ = h.emitValue(tagException, undumpable(err))
		}
	}
	return 1
}

// invoke runs the user work, converting panics into errors.
func (h *Handle) invoke() (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: fmt.Sprint(r), Stack: string(debug.Stack())}
		}
	}()
	return h.work(h)
}

// finalize emits the death notice and closes all owned channel ends. It
// recovers panics that unwound through run so cleanup still happens; the
// process then exits nonzero.
func (h *Handle) finalize() {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "fork_child: panic: %v\n", r)
		defer os.Exit(1)
	}
	if h.caps.Has(DeathNotice) {
		_ = h.emitNotice()
	}
	h.Close()
}

// emitValue encodes value and writes one control frame.
func (h *Handle) emitValue(tag string, value any) error {
	if h.ctrlW == nil {
		return errors.New("control channel not negotiated")
	}
	data, err := h.codec.Encode(value)
	if err != nil {
		return err
	}
	return writeCtrl(h.ctrlW, tag, data)
}

// emitNotice writes the zero-payload death notice frame.
func (h *Handle) emitNotice() error {
	if h.ctrlW == nil {
		return errors.New("control channel not negotiated")
	}
	return writeCtrl(h.ctrlW, tagDeathNotice, nil)
}

// undumpable synthesizes a serializable stand-in for an error the codec
// refused. Type name, message and stack are extracted independently and
// defensively: a misbehaving Error or StackTrace method degrades to
// placeholder text instead of killing the writer.
func undumpable(orig error) *UndumpableError {
	u := &UndumpableError{
		TypeName: fmt.Sprintf("%T", orig),
		Message:  "(message unavailable)",
		Stack:    "(stack unavailable)",
	}
	func() {
		defer func() { _ = recover() }()
		u.Message = orig.Error()
	}()
	func() {
		defer func() { _ = recover() }()
		type stackTracer interface {
			StackTrace() errors.StackTrace
		}
		var st stackTracer
		if errors.As(orig, &st) {
			u.Stack = fmt.Sprintf("%+v", st.StackTrace())
		}
	}()
	return u
}
