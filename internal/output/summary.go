package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/vulnverified/subsweep/internal/engine"
)

// Version is set via ldflags at build time.
var Version = "dev"

// WriteHeader prints the subsweep banner.
func WriteHeader(w io.Writer, noColor bool) {
	title := "subsweep " + Version
	if !noColor {
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}
	fmt.Fprintf(w, "%s - active subdomain enumeration\n\n", title)
}

// WriteSummary prints the post-scan summary.
func WriteSummary(w io.Writer, report *engine.Report, noColor bool) {
	s := report.Summary
	label := func(s string) string { return s }
	mark := "!"
	if !noColor {
		bold := lipgloss.NewStyle().Bold(true)
		label = func(s string) string { return bold.Render(s) }
		mark = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("!")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", label("Target:"), report.Domain)
	fmt.Fprintf(w, "%s %d of %d candidates checked in %.1fs\n", label("Scanned:"), report.Completed, report.Total, report.DurationSecs)
	fmt.Fprintf(w, "%s %d found, %d not found, %d errors\n", label("Results:"), s.Found, s.NotFound, s.Errors)

	if report.State == engine.StateCancelled {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s Scan was stopped early; results are partial\n", mark)
	}

	if s.Wildcards > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s Wildcard DNS: %d found hosts only match the wildcard answer\n", mark, s.Wildcards)
	}

	if len(report.Dangling) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %d potential dangling CNAMEs (possible subdomain takeover)\n", mark, len(report.Dangling))
		for _, r := range report.Dangling {
			fmt.Fprintf(w, "  %s -> %s (%s)\n", r.Hostname, r.CNAME, r.Error)
		}
	}
}
