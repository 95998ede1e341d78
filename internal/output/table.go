package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vulnverified/subsweep/internal/engine"
)

var tableHeaders = []string{"Host", "IP", "Status", "Title", "Notes"}

// WriteTable renders the found hosts of a report as a styled terminal table.
func WriteTable(w io.Writer, report *engine.Report, noColor bool) {
	var rows [][]string
	for _, r := range report.Results {
		if !r.Found {
			continue
		}
		rows = append(rows, []string{
			r.Hostname,
			r.Address,
			statusText(r),
			truncate(r.Title, 30),
			truncate(notes(r), 40),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "\nNo subdomains found.")
		return
	}

	fmt.Fprintln(w)

	if noColor {
		writeSimpleTable(w, rows)
		return
	}

	t := table.New().
		Headers(tableHeaders...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
		})

	for _, row := range rows {
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
}

func statusText(r engine.ScanResult) string {
	switch {
	case r.StatusCode != 0:
		return strconv.Itoa(r.StatusCode)
	case r.Error == engine.ErrProbeFailed:
		return "no response"
	}
	return "-"
}

func notes(r engine.ScanResult) string {
	var n []string
	if r.CNAME != "" {
		n = append(n, "cname "+r.CNAME)
	}
	if r.Wildcard {
		n = append(n, "wildcard")
	}
	if r.Server != "" {
		n = append(n, r.Server)
	}
	return strings.Join(n, ", ")
}

func writeSimpleTable(w io.Writer, rows [][]string) {
	// Calculate column widths.
	widths := make([]int, len(tableHeaders))
	for i, h := range tableHeaders {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprintf(w, "%-*s", widths[i], cell)
		}
		fmt.Fprintln(w)
	}

	writeRow(tableHeaders)
	for i, width := range widths {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", width))
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		writeRow(row)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
