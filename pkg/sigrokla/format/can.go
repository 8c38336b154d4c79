package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

var (
	canIDRE       = regexp.MustCompile(`Identifier: \d+ \(0x([0-9A-Fa-f]+)\)`)
	canDataByteRE = regexp.MustCompile(`^Data byte \d+: 0x([0-9A-Fa-f]{1,2})$`)
)

// canFrame accumulates one start/end-of-frame delimited CAN frame.
type canFrame struct {
	open       bool
	id         string
	ext        bool
	rtr        bool
	dlc        int
	data       []string
	annsInOpen int
}

func (f *canFrame) reset() {
	*f = canFrame{dlc: -1}
}

func (f *canFrame) render() string {
	parts := []string{fmt.Sprintf("ID=0x%s", strings.ToUpper(f.id))}
	if f.id == "" {
		parts[0] = "ID=?"
	}
	if f.ext {
		parts = append(parts, "EXT")
	}
	if f.rtr {
		parts = append(parts, "RTR")
	}
	if f.dlc >= 0 {
		parts = append(parts, fmt.Sprintf("DLC=%d", f.dlc))
	}
	if !f.rtr || len(f.data) > 0 {
		parts = append(parts, fmt.Sprintf("[%s]", strings.Join(f.data, " ")))
	}
	return strings.Join(parts, " ")
}

// CAN folds the annotation stream into start/end-of-frame delimited
// frames:
//
//	#001  ID=0x356 DLC=4 [54 3C 00 01]
//	#002  ID=0x1F334455 EXT RTR DLC=2
//
// An end-of-frame marker always closes and emits the frame; the bracketed
// byte list reflects the bytes actually observed, so a DLC that disagrees
// with it stays visible (legitimate for remote-frame requests). Dropped
// fragments are surfaced as trailing notes.
func CAN(anns []decode.Annotation, maxFrames int) string {
	if len(anns) == 0 {
		return "No CAN data decoded."
	}

	var frames []string
	var f canFrame
	f.reset()
	orphanEOF := 0
	droppedFrames := 0

	for _, a := range anns {
		text := a.Text
		if f.open {
			f.annsInOpen++
		}
		switch {
		case text == "Start of frame":
			if f.open {
				droppedFrames++
			}
			f.reset()
			f.open = true
			f.annsInOpen = 1
		case text == "End of frame":
			if !f.open {
				orphanEOF++
				continue
			}
			frames = append(frames, f.render())
			f.reset()
		case strings.HasPrefix(text, "Full Identifier: "), strings.HasPrefix(text, "Extended Identifier: "),
			strings.HasPrefix(text, "Identifier: "):
			if m := canIDRE.FindStringSubmatch(text); m != nil {
				f.id = m[1]
			}
		case strings.HasPrefix(text, "Identifier extension bit: "):
			f.ext = strings.Contains(text, "extended")
		case strings.HasPrefix(text, "Remote transmission request: "):
			f.rtr = strings.Contains(text, "remote frame")
		case strings.HasPrefix(text, "Data length code: "):
			if n, err := strconv.Atoi(valueAfterColon(text)); err == nil {
				f.dlc = n
			}
		default:
			if m := canDataByteRE.FindStringSubmatch(text); m != nil {
				b := strings.ToUpper(m[1])
				if len(b) == 1 {
					b = "0" + b
				}
				f.data = append(f.data, b)
			}
		}
	}

	unconsumed := 0
	if f.open {
		unconsumed = f.annsInOpen
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CAN: %d frames\n\n", len(frames))

	shown, omitted := TruncateLines(frames, maxFrames)
	for i, fr := range shown {
		fmt.Fprintf(&sb, "#%03d  %s\n", i+1, fr)
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, "\n... (%d more frames)\n", omitted)
	}
	if orphanEOF > 0 {
		fmt.Fprintf(&sb, "\nnote: %d orphaned end-of-frame marker(s) ignored\n", orphanEOF)
	}
	if droppedFrames > 0 {
		fmt.Fprintf(&sb, "\nnote: %d frame(s) dropped (start of frame before previous frame ended)\n", droppedFrames)
	}
	if unconsumed > 0 {
		fmt.Fprintf(&sb, "\nnote: %d annotation(s) unconsumed at end of stream (unterminated frame)\n", unconsumed)
	}
	return strings.TrimRight(sb.String(), "\n")
}
