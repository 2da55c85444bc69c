// Package frame implements the length-prefixed framing used on the fork
// data and control channels: a 4-byte little-endian unsigned payload
// length followed by exactly that many payload bytes.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// prefixSize is the byte width of the frame length prefix.
const prefixSize = 4

// Writer emits frames onto a byte stream.
type Writer struct {
	w io.Writer
}

// NewWriter creates a frame writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes the length prefix followed by p. Prefix and payload
// go out in a single write, so a reader polling the stream never observes
// a prefix whose payload has not been issued yet.
func (w *Writer) WriteFrame(p []byte) error {
	buf := make([]byte, prefixSize+len(p))
	binary.LittleEndian.PutUint32(buf, uint32(len(p)))
	copy(buf[prefixSize:], p)
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("frame: failed to write frame: %w", err)
	}
	return nil
}

// Reader consumes frames from a byte stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a frame reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame returns the next frame payload. A stream that ends cleanly
// before any prefix byte returns io.EOF and signals channel closure; a
// stream ending mid-frame is a corruption error, not closure.
func (r *Reader) ReadFrame() ([]byte, error) {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("frame: failed to read prefix: %w", err)
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	p := make([]byte, n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		return nil, fmt.Errorf("frame: failed to read payload (%d bytes): %w", n, err)
	}
	return p, nil
}
