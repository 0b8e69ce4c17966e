package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/715d/callaudit/pkg/audit"
)

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// terminalProgress draws one status line per module on a terminal. Modules
// running in parallel share the line.
type terminalProgress struct {
	mu sync.Mutex
	w  io.Writer
}

func newTerminalProgress(w io.Writer) *terminalProgress {
	return &terminalProgress{w: w}
}

// ForModule returns the progress sink of one module.
func (p *terminalProgress) ForModule(module string) audit.Progress {
	return &moduleProgress{parent: p, module: module}
}

type moduleProgress struct {
	parent *terminalProgress
	module string
	desc   string
	total  int
	done   int
}

func (m *moduleProgress) Start(total int, description string) {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	m.total, m.done, m.desc = total, 0, description
	m.draw()
}

func (m *moduleProgress) Advance() {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	m.done++
	// Redraw every 1% at most.
	if step := max(m.total/100, 1); m.done%step == 0 || m.done == m.total {
		m.draw()
	}
}

func (m *moduleProgress) Clear() {
	m.parent.mu.Lock()
	defer m.parent.mu.Unlock()
	fmt.Fprint(m.parent.w, "\r\033[K")
}

func (m *moduleProgress) draw() {
	fmt.Fprintf(m.parent.w, "\r\033[K[%s] %s %d/%d", m.module, m.desc, m.done, m.total)
}
