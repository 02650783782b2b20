package util

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// TerminalPrinter multiplexes one live terminal line per parallel run.
// Runs write into their ParallelOutput at any rate; the printer repaints
// all lines at a fixed frequency.
type TerminalPrinter struct {
	outputs   []*ParallelOutput
	frequency time.Duration
	doneCh    chan struct{}

	writer  *uilive.Writer
	writers []io.Writer
}

func NewTerminalPrinter(frequency time.Duration) *TerminalPrinter {
	return &TerminalPrinter{
		outputs:   make([]*ParallelOutput, 0),
		frequency: frequency,
		doneCh:    make(chan struct{}),

		writer:  uilive.New(),
		writers: make([]io.Writer, 0),
	}
}

// NewOutput allocates the next live line. Must be called before Start.
func (t *TerminalPrinter) NewOutput() *ParallelOutput {
	out := NewParallelOutput()
	t.outputs = append(t.outputs, out)
	t.writers = append(t.writers, t.writer.Newline())
	return out
}

func (t *TerminalPrinter) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-t.doneCh:
				t.writer.Stop()
				return
			case <-ctx.Done():
				t.writer.Stop()
				return
			case <-time.After(t.frequency):
				t.print()
			}
		}
	}()
}

func (t *TerminalPrinter) Stop() {
	t.print()
	close(t.doneCh)
}

func (t *TerminalPrinter) print() {
	for i, output := range t.outputs {
		fmt.Fprint(t.writers[i], output.Get()+"\n")
	}
	t.writer.Flush()
}

// ParallelOutput is the single-line status owned by one run.
type ParallelOutput struct {
	mu        sync.Mutex
	printable string
}

func NewParallelOutput() *ParallelOutput {
	return &ParallelOutput{}
}

// Set replaces the status line.
func (p *ParallelOutput) Set(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printable = s
}

func (p *ParallelOutput) Get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printable
}

// Write lets a ParallelOutput stand in for an io.Writer: each write
// replaces the line, trailing newline stripped.
func (p *ParallelOutput) Write(bs []byte) (int, error) {
	s := string(bs)
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	p.Set(s)
	return len(bs), nil
}
