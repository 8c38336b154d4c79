package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

type uartSegment struct {
	dir   string
	bytes []string
}

// UART groups an annotation stream into contiguous same-direction byte
// runs. A direction change closes the current run. Runs render as hex
// plus a printable-ASCII rendering where the bytes allow it:
//
//	TX> 48 65 6C 6C 6F  "Hello"
//	RX< 06              "."
func UART(anns []decode.Annotation, maxBytes int) string {
	if len(anns) == 0 {
		return "No UART data decoded."
	}

	var segments []uartSegment
	cur := uartSegment{}
	skipped := 0

	for _, a := range anns {
		dir, value := uartDirection(a)
		if dir == "" {
			skipped++
			continue
		}
		if dir != cur.dir {
			if len(cur.bytes) > 0 {
				segments = append(segments, cur)
			}
			cur = uartSegment{dir: dir}
		}
		cur.bytes = append(cur.bytes, strings.ToUpper(value))
	}
	if len(cur.bytes) > 0 {
		segments = append(segments, cur)
	}

	totalBytes := 0
	for _, s := range segments {
		totalBytes += len(s.bytes)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "UART: %d bytes in %d segments\n\n", totalBytes, len(segments))

	byteCount := 0
	for _, s := range segments {
		if maxBytes > 0 && byteCount >= maxBytes {
			fmt.Fprintf(&sb, "\n... (truncated at %d bytes)\n", maxBytes)
			break
		}
		prefix := "RX<"
		if s.dir == "TX" {
			prefix = "TX>"
		}
		hexStr := strings.Join(s.bytes, " ")
		if ascii, ok := asciiRender(s.bytes); ok {
			fmt.Fprintf(&sb, "%s %s  %q\n", prefix, hexStr, ascii)
		} else {
			fmt.Fprintf(&sb, "%s %s\n", prefix, hexStr)
		}
		byteCount += len(s.bytes)
	}

	if skipped > 0 {
		fmt.Fprintf(&sb, "\nnote: %d annotation(s) did not match a data direction and were skipped", skipped)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// uartDirection extracts direction and byte value from one annotation.
// The CLI path phrases these as "TX data: 48"; the native path tags the
// class (tx-data/rx-data) with a bare hex value.
func uartDirection(a decode.Annotation) (dir, value string) {
	switch a.Class {
	case "tx-data":
		return "TX", valueAfterColon(a.Text)
	case "rx-data":
		return "RX", valueAfterColon(a.Text)
	}
	switch {
	case strings.HasPrefix(a.Text, "TX data"):
		return "TX", valueAfterColon(a.Text)
	case strings.HasPrefix(a.Text, "RX data"):
		return "RX", valueAfterColon(a.Text)
	}
	return "", ""
}

func valueAfterColon(text string) string {
	if _, v, ok := strings.Cut(text, ": "); ok {
		return v
	}
	return text
}

// asciiRender maps hex byte strings to printable ASCII, with "." for
// anything outside 0x20-0x7E. Fails if any value is not parseable hex.
func asciiRender(hexBytes []string) (string, bool) {
	var sb strings.Builder
	for _, h := range hexBytes {
		v, err := strconv.ParseUint(h, 16, 8)
		if err != nil {
			return "", false
		}
		if v >= 0x20 && v < 0x7F {
			sb.WriteByte(byte(v))
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String(), true
}
