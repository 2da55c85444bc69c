package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	payloads := [][]byte{
		[]byte("first"),
		{},
		[]byte("third frame with a longer payload"),
	}
	for _, p := range payloads {
		if err := w.WriteFrame(p); err != nil {
			t.Fatalf("WriteFrame error: %v", err)
		}
	}

	r := NewReader(&buf)
	for i, want := range payloads {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d error: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
}

// writeCounter records how many Write calls reach the underlying stream.
type writeCounter struct {
	bytes.Buffer
	calls int
}

func (w *writeCounter) Write(p []byte) (int, error) {
	w.calls++
	return w.Buffer.Write(p)
}

func TestWriteFrameSingleWrite(t *testing.T) {
	t.Parallel()
	var wc writeCounter
	w := NewWriter(&wc)
	if err := w.WriteFrame([]byte("payload")); err != nil {
		t.Fatalf("WriteFrame error: %v", err)
	}
	// prefix and payload must reach the stream together: a poller that
	// sees any frame bytes must be able to read the whole frame
	if wc.calls != 1 {
		t.Errorf("WriteFrame issued %d writes, want 1", wc.calls)
	}

	r := NewReader(&wc)
	got, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame error: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Errorf("frame = %q, want %q", got, "payload")
	}
}

func TestCleanEOF(t *testing.T) {
	t.Parallel()
	r := NewReader(bytes.NewReader(nil))
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Fatalf("ReadFrame on empty stream = %v, want io.EOF", err)
	}
}

func TestTruncatedPrefix(t *testing.T) {
	t.Parallel()
	r := NewReader(bytes.NewReader([]byte{1, 0}))
	_, err := r.ReadFrame()
	if err == nil || err == io.EOF {
		t.Fatalf("ReadFrame on truncated prefix = %v, want corruption error", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("error = %v, want wrapped io.ErrUnexpectedEOF", err)
	}
}

func TestTruncatedPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteFrame([]byte("complete")); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]

	r := NewReader(bytes.NewReader(truncated))
	_, err := r.ReadFrame()
	if err == nil || err == io.EOF {
		t.Fatalf("ReadFrame on truncated payload = %v, want corruption error", err)
	}
}
