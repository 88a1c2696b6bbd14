package main

import (
	"fmt"
	"io"
	"sync"
)

// progressPrinter redraws a fan-out counter in place. It stays silent unless
// the writer is a terminal.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	drawn   bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, enabled: isTerminal(out)}
}

func (p *progressPrinter) update(done, total int) {
	if !p.enabled || total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	width := 24
	filled := done * width / total
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	fmt.Fprintf(p.out, "\r  [%s] %d/%d", bar, done, total)
	p.drawn = true
	if done == total {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}
