package capture

import (
	"fmt"
	"strings"
)

// ChannelStats summarizes one channel's behavior across a capture.
type ChannelStats struct {
	Name    string
	Samples int
	High    int
	Edges   int
}

func (cs ChannelStats) activity() string {
	switch {
	case cs.Edges > 0:
		return "active"
	case cs.High == cs.Samples && cs.Samples > 0:
		return "always high"
	case cs.High == 0:
		return "always low"
	default:
		return "static"
	}
}

// Summarize produces a per-channel activity table from packed samples:
// percentage high, edge count, and an active/static verdict. Channels
// without a name in the channel map get a D<n> default.
func Summarize(packed []uint64, numChannels int, channelNames []string) string {
	if len(packed) == 0 || numChannels == 0 {
		return "No sample data to summarize."
	}

	stats := make([]ChannelStats, numChannels)
	for ch := range stats {
		name := fmt.Sprintf("D%d", ch)
		if ch < len(channelNames) && channelNames[ch] != "" {
			name = channelNames[ch]
		}
		stats[ch].Name = name
		stats[ch].Samples = len(packed)
	}

	prev := packed[0]
	for i, sample := range packed {
		for ch := 0; ch < numChannels; ch++ {
			if Bit(sample, ch) == 1 {
				stats[ch].High++
			}
			if i > 0 && Bit(sample, ch) != Bit(prev, ch) {
				stats[ch].Edges++
			}
		}
		prev = sample
	}

	return renderSummary(len(packed), stats)
}

// SummarizeBits produces the same activity table from textual bits output
// (the CLI fallback for file-only captures). Lines look like
// "A0:11111111 00001111" with a channel label prefix and groups of bits;
// anything else is skipped.
func SummarizeBits(raw string) string {
	channelBits := make(map[string][]byte)
	var order []string

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		label, data, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		data = strings.TrimSpace(data)
		if data == "" || strings.Trim(data, "01 ") != "" {
			continue
		}
		bits := strings.ReplaceAll(data, " ", "")
		if bits == "" {
			continue
		}
		if _, seen := channelBits[label]; !seen {
			order = append(order, label)
		}
		channelBits[label] = append(channelBits[label], bits...)
	}

	if len(order) == 0 {
		return "No sample data to summarize (could not parse channel data)."
	}

	stats := make([]ChannelStats, 0, len(order))
	totalSamples := 0
	for _, name := range order {
		bits := channelBits[name]
		cs := ChannelStats{Name: name, Samples: len(bits)}
		for i, b := range bits {
			if b == '1' {
				cs.High++
			}
			if i > 0 && b != bits[i-1] {
				cs.Edges++
			}
		}
		if totalSamples == 0 {
			totalSamples = cs.Samples
		}
		stats = append(stats, cs)
	}

	return renderSummary(totalSamples, stats)
}

func renderSummary(totalSamples int, stats []ChannelStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Capture summary: %d samples, %d channels\n\n", totalSamples, len(stats))
	fmt.Fprintf(&sb, "%-10s %8s %8s   %s\n", "Channel", "High %", "Edges", "Activity")
	sb.WriteString(strings.Repeat("-", 45))
	sb.WriteByte('\n')

	for _, cs := range stats {
		pctHigh := 0.0
		if cs.Samples > 0 {
			pctHigh = float64(cs.High) / float64(cs.Samples) * 100
		}
		fmt.Fprintf(&sb, "%-10s %7.1f%% %8d   %s\n", cs.Name, pctHigh, cs.Edges, cs.activity())
	}
	return strings.TrimRight(sb.String(), "\n")
}
