package fork

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/apeiros/fork/pkg/codec"
	"github.com/apeiros/fork/pkg/frame"
)

// Role identifies which side of the fork a handle lives on. It is fixed
// at the moment of process duplication and never changes within that
// process image.
type Role int

const (
	// RoleParent is the process that called Start.
	RoleParent Role = iota
	// RoleChild is the re-executed process running the work.
	RoleChild
)

func (r Role) String() string {
	if r == RoleChild {
		return "child"
	}
	return "parent"
}

// Work is the unit of computation run exactly once in the child. It
// receives the child-side handle, so it can use the same channel API as
// the parent with the directions interpreted from its own perspective.
// The returned value is delivered as the return_value frame, the returned
// error as the exception frame, subject to the negotiated capabilities.
type Work func(h *Handle) (any, error)

// lifecycle stage, never moves backwards
type stage int

const (
	stageNew stage = iota
	stageRunning
	stageExited
)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Work)
)

// Register makes work available under name. It must run before Init and
// identically in parent and child: registration is how the re-executed
// child process finds its work.
func Register(name string, work Work) {
	if work == nil {
		panic("fork: Register called with nil work")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("fork: work %q registered twice", name))
	}
	registry[name] = work
}

func lookup(name string) (Work, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	w, ok := registry[name]
	return w, ok
}

// Handle represents one child process attempt and its negotiated
// channels. It owns its pipe ends exclusively and must not be copied.
type Handle struct {
	noCopy noCopy

	caps      Capability
	name      string
	work      Work
	codec     codec.Codec
	codecName string

	role  Role
	pid   int
	stage stage

	in   *os.File // data from the peer
	out  *os.File // data to the peer
	ctrl *os.File // parent holds the read end, child the write end

	dataR *frame.Reader
	dataW *frame.Writer
	ctrlR *frame.Reader
	ctrlW *frame.Writer

	// outcome fields, each write-once by the control channel drain
	status   unix.WaitStatus
	exitCode int
	retVal   any
	hasRet   bool
	exc      error
	hasExc   bool
	notice   bool
	drained  bool
}

// defaultCodecName is the pre-registered gob codec.
const defaultCodecName = "gob"

var (
	codecMu sync.Mutex
	codecs  = map[string]codec.Codec{defaultCodecName: codec.Gob{}}
)

// RegisterCodec makes a codec available under name for channel
// serialization. Like Register it must run before Init and identically in
// parent and child: the child selects its codec by the name recorded in
// the launch arguments, so both sides always agree.
func RegisterCodec(name string, c codec.Codec) {
	if c == nil {
		panic("fork: RegisterCodec called with nil codec")
	}
	codecMu.Lock()
	defer codecMu.Unlock()
	if _, ok := codecs[name]; ok {
		panic(fmt.Sprintf("fork: codec %q registered twice", name))
	}
	codecs[name] = c
}

func lookupCodec(name string) (codec.Codec, bool) {
	codecMu.Lock()
	defer codecMu.Unlock()
	c, ok := codecs[name]
	return c, ok
}

// Option configures a handle at construction.
type Option func(*Handle)

// WithCodec selects a registered codec for the data and control channels.
// The choice is carried to the child in the launch arguments.
func WithCodec(name string) Option {
	return func(h *Handle) { h.codecName = name }
}

// New creates a handle that will run the work registered under name in a
// child process, with the given capability set. Implied capabilities are
// expanded here, once. Construction allocates no OS resources; Start does.
func New(name string, caps Capability, opts ...Option) (*Handle, error) {
	work, ok := lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrNoWork, "new %q", name)
	}
	h := &Handle{
		caps:      caps.normalize(),
		name:      name,
		work:      work,
		codecName: defaultCodecName,
		role:      RoleParent,
	}
	for _, o := range opts {
		o(h)
	}
	c, ok := lookupCodec(h.codecName)
	if !ok {
		return nil, errors.Errorf("new %q: codec %q not registered", name, h.codecName)
	}
	h.codec = c
	return h, nil
}

// complete installs the launch identity (role, pid, channel ends) exactly
// once. A second completion is a programming error.
func (h *Handle) complete(role Role, pid int, in, out, ctrl *os.File) {
	if h.stage != stageNew {
		panic("fork: handle completed twice")
	}
	h.role = role
	h.pid = pid
	h.in, h.out, h.ctrl = in, out, ctrl
	if in != nil {
		h.dataR = frame.NewReader(in)
	}
	if out != nil {
		h.dataW = frame.NewWriter(out)
	}
	if ctrl != nil {
		if role == RoleParent {
			h.ctrlR = frame.NewReader(ctrl)
		} else {
			h.ctrlW = frame.NewWriter(ctrl)
		}
	}
	h.stage = stageRunning
}

// require guards a channel operation: the facility must have been
// negotiated and the handle launched.
func (h *Handle) require(c Capability) error {
	if !h.caps.Has(c) {
		return &CapabilityError{Cap: c}
	}
	if h.stage == stageNew {
		return ErrNotRunning
	}
	return nil
}

// Caps returns the normalized capability set.
func (h *Handle) Caps() Capability {
	return h.caps
}

// Pid returns the child process id, 0 before launch.
func (h *Handle) Pid() int {
	return h.pid
}

// Role returns which side of the fork this handle lives on.
func (h *Handle) Role() Role {
	return h.role
}

// Close releases the handle's retained channel ends. The cached outcome
// fields stay available.
func (h *Handle) Close() error {
	var first error
	for _, f := range []*os.File{h.in, h.out, h.ctrl} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	h.in, h.out, h.ctrl = nil, nil, nil
	return first
}

func (h *Handle) String() string {
	switch h.stage {
	case stageNew:
		return fmt.Sprintf("Fork[%s not running caps=%s]", h.name, h.caps)
	case stageRunning:
		return fmt.Sprintf("Fork[%s %s pid=%d caps=%s]", h.name, h.role, h.pid, h.caps)
	default:
		return fmt.Sprintf("Fork[%s pid=%d exited=%d]", h.name, h.pid, h.exitCode)
	}
}

// noCopy makes go vet flag copies of a Handle: the handle holds exclusive
// ownership of OS file descriptors and duplication is disallowed.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
