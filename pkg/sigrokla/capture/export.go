package capture

import (
	"fmt"
	"strings"
)

// Export renders raw capture bytes as text lines, one line per sample.
// Supported formats are "bits" (default), "hex" and "csv". channelFilter,
// when non-nil, restricts bits/csv output to the listed channel indices.
func Export(raw []byte, numChannels int, format string, channelFilter []int) ([]string, error) {
	if numChannels < 1 || numChannels > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, numChannels)
	}
	switch format {
	case "hex":
		return exportHex(raw, numChannels), nil
	case "csv":
		return exportBits(raw, numChannels, channelFilter, ","), nil
	case "", "bits":
		return exportBits(raw, numChannels, channelFilter, ""), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want bits, hex or csv)", format)
	}
}

func exportBits(raw []byte, numChannels int, channelFilter []int, sep string) []string {
	unit := UnitSize(numChannels)
	if unit == 0 || len(raw) < unit {
		return nil
	}
	channels := channelFilter
	if channels == nil {
		channels = make([]int, numChannels)
		for i := range channels {
			channels[i] = i
		}
	}

	lines := make([]string, 0, len(raw)/unit)
	var sb strings.Builder
	for i := 0; i < len(raw)/unit; i++ {
		sb.Reset()
		for j, ch := range channels {
			if j > 0 && sep != "" {
				sb.WriteString(sep)
			}
			if RawBit(raw, numChannels, i, ch) != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		lines = append(lines, sb.String())
	}
	return lines
}

func exportHex(raw []byte, numChannels int) []string {
	unit := UnitSize(numChannels)
	if unit == 0 || len(raw) < unit {
		return nil
	}
	lines := make([]string, 0, len(raw)/unit)
	for i := 0; i < len(raw)/unit; i++ {
		var sb strings.Builder
		for b := 0; b < unit; b++ {
			fmt.Fprintf(&sb, "%02x", raw[i*unit+b])
		}
		lines = append(lines, sb.String())
	}
	return lines
}
