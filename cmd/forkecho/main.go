// Command forkecho demonstrates a bidirectional fork handle: the child
// echoes every received integer incremented by one until it receives the
// sentinel, then delivers its echo count as the return value.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/apeiros/fork"
)

func echo(h *fork.Handle) (any, error) {
	count := 0
	for {
		v, err := h.RecvValue()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return nil, err
		}
		if s, ok := v.(string); ok && s == "done" {
			return count, nil
		}
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("echo: unexpected value %T", v)
		}
		if err := h.Send(n + 1); err != nil {
			return nil, err
		}
		count++
	}
}

func main() {
	fork.Register("echo", echo)
	fork.Init()

	h, err := fork.New("echo", fork.ToFork|fork.FromFork|fork.Return|fork.DeathNotice)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forkecho: %v\n", err)
		os.Exit(1)
	}
	if err := h.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "forkecho: %v\n", err)
		os.Exit(1)
	}
	defer h.Close()

	fmt.Printf("started %v\n", h)
	for i := 1; i <= 3; i++ {
		if err := h.Send(i); err != nil {
			fmt.Fprintf(os.Stderr, "forkecho: send: %v\n", err)
			os.Exit(1)
		}
		v, err := h.RecvValue()
		if err != nil {
			fmt.Fprintf(os.Stderr, "forkecho: recv: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sent %d, echoed %v\n", i, v)
	}
	if err := h.Send("done"); err != nil {
		fmt.Fprintf(os.Stderr, "forkecho: send sentinel: %v\n", err)
		os.Exit(1)
	}

	n, err := h.ReturnValue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forkecho: return value: %v\n", err)
		os.Exit(1)
	}
	code, err := h.Wait()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forkecho: wait: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("child echoed %v values, exit status %d\n", n, code)
}
