package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vulnverified/subsweep/internal/engine"
)

// WriteText writes the plain-text report: a header with the domain, scan
// date and number of hosts found, then one block per found host.
func WriteText(w io.Writer, report *engine.Report) error {
	bw := bufio.NewWriter(w)

	date := report.StartedAt
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(bw, "Subdomain scan results for: %s\n", report.Domain)
	fmt.Fprintf(bw, "Scan date: %s\n", date.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "Total found: %d\n", report.Summary.Found)
	if report.State == engine.StateCancelled {
		fmt.Fprintf(bw, "Partial: stopped after %d of %d candidates\n", report.Completed, report.Total)
	}
	fmt.Fprintf(bw, "%s\n\n", strings.Repeat("=", 50))

	for _, r := range report.Results {
		if !r.Found {
			continue
		}
		status := statusText(r)
		if status == "-" {
			status = "N/A"
		}
		fmt.Fprintf(bw, "Subdomain: %s\n", r.Hostname)
		fmt.Fprintf(bw, "IP: %s\n", r.Address)
		fmt.Fprintf(bw, "Status: %s\n", status)
		fmt.Fprintf(bw, "%s\n", strings.Repeat("-", 30))
	}
	return bw.Flush()
}

// WriteTextFile writes the plain-text report to path.
func WriteTextFile(path string, report *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report %s: %w", path, err)
	}
	if err := WriteText(f, report); err != nil {
		f.Close()
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return f.Close()
}
