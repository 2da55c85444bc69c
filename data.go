package fork

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// readCap returns the flag governing this side's inbound data channel:
// from_fork for the parent, to_fork for the child. The roles are
// symmetric, each side reads what the other writes.
func (h *Handle) readCap() Capability {
	if h.role == RoleChild {
		return ToFork
	}
	return FromFork
}

func (h *Handle) writeCap() Capability {
	if h.role == RoleChild {
		return FromFork
	}
	return ToFork
}

// Read reads raw bytes from the inbound data channel with blocking stream
// semantics. It returns io.EOF once the peer has closed its end.
func (h *Handle) Read(p []byte) (int, error) {
	if err := h.require(h.readCap()); err != nil {
		return 0, err
	}
	return h.in.Read(p)
}

// TryRead is the non-blocking variant of Read: when no bytes are buffered
// it returns ok == false immediately instead of blocking.
func (h *Handle) TryRead(p []byte) (n int, ok bool, err error) {
	if err := h.require(h.readCap()); err != nil {
		return 0, false, err
	}
	ready, err := fdReadable(h.in)
	if err != nil {
		return 0, false, err
	}
	if !ready {
		return 0, false, nil
	}
	n, err = h.in.Read(p)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Write writes raw bytes to the outbound data channel.
func (h *Handle) Write(p []byte) (int, error) {
	if err := h.require(h.writeCap()); err != nil {
		return 0, err
	}
	return h.out.Write(p)
}

// Send encodes v and writes it as a single frame on the outbound data
// channel. The value must be encodable by the negotiated codec.
func (h *Handle) Send(v any) error {
	if err := h.require(h.writeCap()); err != nil {
		return err
	}
	data, err := h.codec.Encode(v)
	if err != nil {
		return err
	}
	return h.dataW.WriteFrame(data)
}

// Recv reads one frame from the inbound data channel and decodes it into
// v, a non-nil pointer. It blocks until a frame arrives and returns
// io.EOF once the peer has closed its end.
func (h *Handle) Recv(v any) error {
	if err := h.require(h.readCap()); err != nil {
		return err
	}
	data, err := h.dataR.ReadFrame()
	if err != nil {
		return err
	}
	return h.codec.Decode(data, v)
}

// RecvValue reads one frame and returns the decoded value.
func (h *Handle) RecvValue() (any, error) {
	var v any
	if err := h.Recv(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// TryRecvValue is the non-blocking variant of RecvValue: when no frame
// bytes are buffered it returns ok == false immediately instead of
// blocking.
func (h *Handle) TryRecvValue() (v any, ok bool, err error) {
	if err := h.require(h.readCap()); err != nil {
		return nil, false, err
	}
	ready, err := fdReadable(h.in)
	if err != nil {
		return nil, false, err
	}
	if !ready {
		return nil, false, nil
	}
	v, err = h.RecvValue()
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// fdReadable polls f for buffered data or peer closure with a zero
// timeout.
func fdReadable(f *os.File) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	for err == unix.EINTR {
		n, err = unix.Poll(fds, 0)
	}
	if err != nil {
		return false, errors.Wrap(err, "poll data channel")
	}
	return n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP) != 0, nil
}
