package fork

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/apeiros/fork/pkg/frame"
)

// control frame tags; the child is the single writer and emits each tag
// at most once
const (
	tagReturnValue = "return_value"
	tagException   = "exception"
	tagDeathNotice = "death_notice"
)

// ctrlMsg is the decoded control frame payload: an instruction tag and the
// serialized value it carries (empty for death_notice).
type ctrlMsg struct {
	Tag  string
	Data []byte
}

func writeCtrl(w *frame.Writer, tag string, data []byte) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ctrlMsg{Tag: tag, Data: data}); err != nil {
		return errors.Wrap(err, "encode control frame")
	}
	return w.WriteFrame(buf.Bytes())
}

// readCtrl returns the next control frame, io.EOF on clean channel
// closure.
func readCtrl(r *frame.Reader) (*ctrlMsg, error) {
	p, err := r.ReadFrame()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read control frame")
	}
	var m ctrlMsg
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "corrupted control frame")
	}
	return &m, nil
}

// drain reads control frames and applies them to the cached outcome
// fields until the channel closes. A non-empty stop tag ends the drain
// early once that tag has been applied, which is how blocking outcome
// queries return as soon as their frame arrives. Seeing a death notice
// means the child is in its final cleanup, so a blocking reap is
// triggered once afterwards to make exit status available.
func (h *Handle) drain(stop string) error {
	if h.ctrlR == nil || h.drained {
		return nil
	}
	sawNotice := false
	for {
		m, err := readCtrl(h.ctrlR)
		if err == io.EOF {
			h.drained = true
			break
		}
		if err != nil {
			return err
		}
		h.apply(m)
		if m.Tag == tagDeathNotice {
			sawNotice = true
		}
		if stop != "" && m.Tag == stop {
			break
		}
	}
	if (sawNotice || h.drained) && h.stage == stageRunning {
		if _, err := h.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// apply caches one control frame. Every field is write-once: the single
// writer emits each tag at most once, and a tag outside the protocol is a
// violated invariant, not an error to hand back.
func (h *Handle) apply(m *ctrlMsg) {
	switch m.Tag {
	case tagReturnValue:
		var v any
		if err := h.codec.Decode(m.Data, &v); err != nil {
			panic(fmt.Sprintf("fork: corrupted return_value frame: %v", err))
		}
		h.retVal, h.hasRet = v, true

	case tagException:
		var v any
		if err := h.codec.Decode(m.Data, &v); err != nil {
			panic(fmt.Sprintf("fork: corrupted exception frame: %v", err))
		}
		e, ok := v.(error)
		if !ok {
			panic(fmt.Sprintf("fork: exception payload %T does not implement error", v))
		}
		h.exc, h.hasExc = e, true

	case tagDeathNotice:
		h.notice = true

	default:
		panic(fmt.Sprintf("fork: unknown control frame tag %q", m.Tag))
	}
}

// ReturnValue blocks until the child's return value is available and
// returns it. If the child raised instead, the cached exception is
// returned as the error. Requires the return capability regardless of
// what happens to be cached.
func (h *Handle) ReturnValue() (any, error) {
	if err := h.require(Return); err != nil {
		return nil, err
	}
	if !h.hasRet && !h.hasExc {
		if err := h.drain(tagReturnValue); err != nil {
			return nil, err
		}
	}
	if h.hasExc {
		return nil, h.exc
	}
	if !h.hasRet {
		return nil, errors.New("fork: child exited without delivering a return value")
	}
	return h.retVal, nil
}

// Exception blocks until the child's outcome is known and returns its
// error, nil if the work completed normally. The second result reports
// query failures (missing capability, not launched, broken channel).
func (h *Handle) Exception() (error, error) {
	if err := h.require(Exceptions); err != nil {
		return nil, err
	}
	if !h.hasExc {
		if err := h.drain(tagException); err != nil {
			return nil, err
		}
	}
	return h.exc, nil
}

// DeathNoticeReceived blocks until the child's death notice arrives or
// the control channel closes, and reports whether it was seen.
func (h *Handle) DeathNoticeReceived() (bool, error) {
	if err := h.require(DeathNotice); err != nil {
		return false, err
	}
	if !h.notice {
		if err := h.drain(tagDeathNotice); err != nil {
			return false, err
		}
	}
	return h.notice, nil
}
