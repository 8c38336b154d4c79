package decode

import (
	"strings"
)

// Annotation is one decoder-emitted observation tagged with the sample
// range that produced it. Streams are ordered by emission; co-incident
// start samples are legal and consumers must preserve emission order.
type Annotation struct {
	Decoder string
	Class   string
	Start   int
	End     int
	Text    string
}

// Line renders the annotation in the textual form the CLI path emits:
// "<decoder>: <text>".
func (a Annotation) Line() string {
	if a.Decoder == "" {
		return a.Text
	}
	return a.Decoder + ": " + a.Text
}

// ParseLines parses textual decoder output, one annotation per line, into
// an annotation stream. Lines look like "i2c-1: Start" or "uart-1: 48";
// the prefix before the first ": " is the decoder instance. Sample ranges
// are not present in this form and stay zero. Order is preserved.
func ParseLines(raw string) []Annotation {
	var anns []Annotation
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		decoder, text, ok := strings.Cut(line, ": ")
		if !ok || text == "" {
			continue
		}
		anns = append(anns, Annotation{Decoder: decoder, Text: text})
	}
	return anns
}

// RenderLines is the inverse of ParseLines: the annotation stream as the
// line-oriented text the formatters and the cache operate on.
func RenderLines(anns []Annotation) string {
	lines := make([]string, len(anns))
	for i, a := range anns {
		lines[i] = a.Line()
	}
	return strings.Join(lines, "\n")
}
