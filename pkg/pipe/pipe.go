// Package pipe provides OS pipe pairs for the fork data and control
// channels. Each pair is partitioned between the parent and the child
// after launch: every end has exactly one owner process and the other
// process closes its copy immediately.
package pipe

import (
	"fmt"
	"os"
)

// Pair is a single OS pipe. R is the read end, W the write end.
// os.Pipe descriptors are byte streams with no translation mode, so the
// transport is binary safe.
type Pair struct {
	R *os.File
	W *os.File
}

// New allocates a pipe pair.
func New() (*Pair, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipe: failed to create pipe: %w", err)
	}
	return &Pair{R: r, W: w}, nil
}

// Close closes both ends, returning the first error encountered.
func (p *Pair) Close() error {
	err := p.R.Close()
	if werr := p.W.Close(); err == nil {
		err = werr
	}
	return err
}
