package output

import (
	"io"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/vulnverified/subsweep/internal/engine"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Bar renders a progress bar over the scan. It implements engine.EventSink
// and only reacts to counting events; messages are left to a Printer.
type Bar struct {
	w       io.Writer
	noColor bool
	bar     *progressbar.ProgressBar
}

// NewBar returns a bar writing to w.
func NewBar(w io.Writer, noColor bool) *Bar {
	return &Bar{w: w, noColor: noColor}
}

// Started sizes the bar to the candidate count.
func (b *Bar) Started(e engine.StartedEvent) {
	theme := progressbar.Theme{
		Saucer:        "=",
		SaucerHead:    ">",
		SaucerPadding: " ",
		BarStart:      "[",
		BarEnd:        "]",
	}
	if !b.noColor {
		theme.Saucer = "[green]=[reset]"
		theme.SaucerHead = "[green]>[reset]"
	}
	b.bar = progressbar.NewOptions(e.Total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionEnableColorCodes(!b.noColor),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Resolving"),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(theme),
	)
}

// Progress advances the bar by one completion.
func (b *Bar) Progress(e engine.ProgressEvent) {
	if b.bar == nil {
		return
	}
	if e.Result.Found {
		b.bar.Describe("Resolving (" + strconv.Itoa(e.Counters.Found) + " found)")
	}
	_ = b.bar.Add(1)
}

// Done fills and clears the bar.
func (b *Bar) Done(engine.DoneEvent) {
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}

// Cancelled clears the bar where it stopped.
func (b *Bar) Cancelled(engine.CancelledEvent) { b.clear() }

// Failed clears the bar where it stopped.
func (b *Bar) Failed(engine.FailedEvent) { b.clear() }

func (b *Bar) clear() {
	if b.bar != nil {
		_ = b.bar.Clear()
		b.bar = nil
	}
}
