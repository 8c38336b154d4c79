package format

import (
	"fmt"
	"strings"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

// Fallback renders an annotation stream with no protocol grouping: one
// numbered line per annotation, verbatim, emission order preserved. Used
// for every decoder without a dedicated transaction formatter.
func Fallback(anns []decode.Annotation, maxLines int) string {
	if len(anns) == 0 {
		return "No protocol data decoded. Check channel mapping and decoder settings."
	}

	lines := make([]string, len(anns))
	for i, a := range anns {
		lines[i] = fmt.Sprintf("#%03d  %s", i+1, a.Line())
	}
	shown, omitted := TruncateLines(lines, maxLines)

	if omitted == 0 {
		return fmt.Sprintf("Decoded %d annotations:\n\n%s", len(anns), strings.Join(shown, "\n"))
	}
	return fmt.Sprintf("Decoded %d annotations (showing first %d):\n\n%s\n\n... (%d more lines truncated)",
		len(anns), len(shown), strings.Join(shown, "\n"), omitted)
}

// DecodedText bounds raw decoder output for detail=raw responses: verbatim
// lines with a count header and an explicit truncation marker.
func DecodedText(raw string, maxLines int) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "No protocol data decoded. Check channel mapping and decoder settings."
	}

	lines := strings.Split(raw, "\n")
	shown, omitted := TruncateLines(lines, maxLines)

	if omitted == 0 {
		return fmt.Sprintf("Decoded %d annotations:\n\n%s", len(lines), strings.Join(shown, "\n"))
	}
	return fmt.Sprintf("Decoded %d annotations (showing first %d):\n\n%s\n\n... (%d more lines truncated)",
		len(lines), len(shown), strings.Join(shown, "\n"), omitted)
}
