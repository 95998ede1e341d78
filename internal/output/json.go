package output

import (
	"encoding/json"
	"io"

	"github.com/vulnverified/subsweep/internal/engine"
)

// WriteJSON writes the scan report as indented JSON to w.
func WriteJSON(w io.Writer, report *engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
