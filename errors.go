package fork

import (
	"encoding/gob"
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotRunning reports an operation that needs an active child process
// attempted before launch.
var ErrNotRunning = errors.New("fork: handle not running")

// ErrNoWork reports handle construction naming work that was never
// registered.
var ErrNoWork = errors.New("fork: no work registered under that name")

// CapabilityError reports an operation on a facility that was not
// negotiated at construction.
type CapabilityError struct {
	Cap Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("fork: capability %s not granted", e.Cap)
}

// UnknownCapabilityError reports an unrecognized facility name at
// construction.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("fork: unknown capability %q", e.Name)
}

// UndumpableError stands in for a child error that could not be
// serialized. It carries whatever could be extracted from the original as
// plain text.
type UndumpableError struct {
	TypeName string
	Message  string
	Stack    string
}

func (e *UndumpableError) Error() string {
	return fmt.Sprintf("fork: undumpable %s: %s", e.TypeName, e.Message)
}

// ExitRequest is a process-control condition: work returning it asks the
// child to exit with Code, bypassing outcome encoding entirely. The death
// notice and channel close still run.
type ExitRequest struct {
	Code int
}

func (e *ExitRequest) Error() string {
	return fmt.Sprintf("fork: exit requested with code %d", e.Code)
}

// Exit builds an ExitRequest for the given exit code.
func Exit(code int) error {
	return &ExitRequest{Code: code}
}

// PanicError carries a panic recovered from the user work out to the
// parent as an exception.
type PanicError struct {
	Value string
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fork: work panicked: %s", e.Value)
}

func init() {
	// both cross the control channel inside an interface
	gob.Register(&UndumpableError{})
	gob.Register(&PanicError{})
}
