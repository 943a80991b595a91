package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter writes "<Label> N%." lines. Multiple files are in flight
// during parallel uploads, so the file name is included when verbose.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	verbose bool
}

func newProgressPrinter(w io.Writer, label string, verbose bool) *progressPrinter {
	return &progressPrinter{w: w, label: label, verbose: verbose}
}

func (p *progressPrinter) report(name string, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verbose {
		fmt.Fprintf(p.w, "%s %s %d%%.\n", p.label, name, percent)
		return
	}
	fmt.Fprintf(p.w, "%s %d%%.\n", p.label, percent)
}

// progressFunc returns the printer's callback when w is a terminal and nil
// otherwise, so piped output stays clean.
func progressFunc(w io.Writer, label string, verbose bool) func(string, int) {
	if !isTerminal(w) {
		return nil
	}
	return newProgressPrinter(w, label, verbose).report
}
