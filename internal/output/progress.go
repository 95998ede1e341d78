// Package output handles all subsweep CLI output formatting.
package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/vulnverified/subsweep/internal/engine"
)

// Printer writes scan events to w, usually stderr. It implements
// engine.EventSink.
type Printer struct {
	w       io.Writer
	verbose bool
	silent  bool
	live    bool // print each found host as it completes

	found lipgloss.Style
	miss  lipgloss.Style
	warn  lipgloss.Style
	bold  lipgloss.Style
}

// NewPrinter creates a printer. With live set, found hosts are printed as they
// complete; verbose adds not-found and failed candidates.
func NewPrinter(w io.Writer, verbose, silent, live, noColor bool) *Printer {
	p := &Printer{
		w:       w,
		verbose: verbose,
		silent:  silent,
		live:    live,
		found:   lipgloss.NewStyle(),
		miss:    lipgloss.NewStyle(),
		warn:    lipgloss.NewStyle(),
		bold:    lipgloss.NewStyle(),
	}
	if !noColor {
		p.found = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		p.miss = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		p.warn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
		p.bold = lipgloss.NewStyle().Bold(true)
	}
	return p
}

// Started prints the scan header.
func (p *Printer) Started(e engine.StartedEvent) {
	if p.silent {
		return
	}
	fmt.Fprintf(p.w, "Scanning %s with %d candidates\n", p.bold.Render(e.Domain), e.Total)
}

// Progress prints a completed candidate.
func (p *Printer) Progress(e engine.ProgressEvent) {
	if p.silent {
		return
	}
	r := e.Result
	switch {
	case r.Found && (p.live || p.verbose):
		fmt.Fprintf(p.w, "  %s %s\n", p.found.Render("[+]"), describe(r))
	case !r.Found && p.verbose:
		reason := string(r.Error)
		if r.Dangling {
			reason += ", dangling CNAME " + r.CNAME
		}
		fmt.Fprintf(p.w, "  %s %s (%s)\n", p.miss.Render("[-]"), r.Hostname, reason)
	}
}

// Done prints the final duration.
func (p *Printer) Done(e engine.DoneEvent) {
	if p.silent {
		return
	}
	fmt.Fprintf(p.w, "\nCompleted in %.1fs\n", e.Elapsed.Seconds())
}

// Cancelled prints how far the scan got.
func (p *Printer) Cancelled(e engine.CancelledEvent) {
	if p.silent {
		return
	}
	fmt.Fprintf(p.w, "\n%s Scan stopped (%s) after %d of %d candidates in %.1fs\n",
		p.warn.Render("!"), e.Reason, e.Completed, e.Total, e.Elapsed.Seconds())
}

// Failed prints the error. It is printed even in silent mode.
func (p *Printer) Failed(e engine.FailedEvent) {
	fmt.Fprintf(p.w, "%s Scan failed: %s\n", p.warn.Render("!"), e.Err)
}

func describe(r engine.ScanResult) string {
	s := fmt.Sprintf("%s -> %s", r.Hostname, r.Address)
	if r.StatusCode != 0 {
		s += fmt.Sprintf(" [%d]", r.StatusCode)
	}
	if r.Error == engine.ErrProbeFailed {
		s += " [probe failed]"
	}
	if r.Wildcard {
		s += " (wildcard)"
	}
	return s
}
