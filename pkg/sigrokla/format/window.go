package format

import (
	"fmt"
	"strings"
)

// Window is a bounded view over a larger line sequence. Start is the
// absolute index of Lines[0] in the source data, so a caller can stitch
// consecutive windows without resending earlier ones. Omitted always
// equals Total minus the lines shown, letting the caller distinguish a
// complete view from a truncated one.
type Window struct {
	Lines   []string
	Start   int
	Total   int
	Omitted int
}

// WindowLines clamps [start, start+size) to the available data.
func WindowLines(lines []string, start, size int) Window {
	total := len(lines)
	if total == 0 {
		return Window{}
	}
	if start < 0 {
		start = 0
	}
	if start > total-1 {
		start = total - 1
	}
	if size < 0 {
		size = 0
	}
	end := start + size
	if end > total {
		end = total
	}
	w := Window{Lines: lines[start:end], Start: start, Total: total}
	w.Omitted = total - len(w.Lines)
	return w
}

func (w Window) String() string {
	if w.Total == 0 {
		return "No sample data available."
	}
	header := fmt.Sprintf("Samples %d-%d of %d total (showing %d samples):\n",
		w.Start, w.Start+len(w.Lines)-1, w.Total, len(w.Lines))
	return header + strings.Join(w.Lines, "\n")
}

// TruncateLines bounds a line sequence to max lines and reports how many
// were dropped. max <= 0 means unbounded.
func TruncateLines(lines []string, max int) ([]string, int) {
	if max <= 0 || len(lines) <= max {
		return lines, 0
	}
	return lines[:max], len(lines) - max
}
