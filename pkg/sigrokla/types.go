package sigrokla

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CaptureOptions describes one acquisition request.
type CaptureOptions struct {
	Driver         string // sigrok driver, e.g. "fx2lafw" or "demo"
	Channels       string // comma-separated channel list, e.g. "D0,D1"
	SampleRate     string // e.g. "1M", "24MHz"
	NumSamples     int
	DurationMS     int
	Triggers       string // comma-separated "ch=cond" pairs, e.g. "D0=f"
	WaitTrigger    bool
	TriggerTimeout time.Duration
	Description    string
}

// DecodeOptions selects a protocol decoder and how to shape its output.
type DecodeOptions struct {
	Decoder          string            // e.g. "i2c", "spi", "uart"
	ChannelBindings  map[string]string // decoder signal -> channel, e.g. sda -> D0
	DecoderOptions   map[string]string // decoder options, e.g. baudrate -> 115200
	AnnotationFilter string            // explicit annotation-class filter
	Detail           string            // "summary" (default) or "raw"
}

// RawSampleOptions selects a window of exported samples.
type RawSampleOptions struct {
	Format   string // "bits" (default), "hex" or "csv"
	Start    int
	Count    int
	Channels []int // optional channel filter, bits/csv only
}

const (
	DetailSummary = "summary"
	DetailRaw     = "raw"
)

func (o DecodeOptions) detail() string {
	if o.Detail == "" {
		return DetailSummary
	}
	return o.Detail
}

func (o DecodeOptions) Validate() error {
	if o.Decoder == "" {
		return fmt.Errorf("decoder is required")
	}
	switch o.detail() {
	case DetailSummary, DetailRaw:
	default:
		return fmt.Errorf("unknown detail level %q (expected %q or %q)", o.Detail, DetailSummary, DetailRaw)
	}
	return nil
}

func (o RawSampleOptions) Validate() error {
	switch o.Format {
	case "", "bits", "hex", "csv":
	default:
		return fmt.Errorf("unknown sample format %q (expected bits, hex or csv)", o.Format)
	}
	if o.Start < 0 {
		return fmt.Errorf("start must be >= 0, got %d", o.Start)
	}
	if o.Count < 0 {
		return fmt.Errorf("count must be >= 0, got %d", o.Count)
	}
	return nil
}

// ParsePairs parses "key=value,key=value" strings, as used for channel
// bindings ("sda=D0,scl=D1") and decoder options ("baudrate=115200").
func ParsePairs(s string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			return nil, fmt.Errorf("malformed pair %q (expected key=value)", part)
		}
		out[key] = val
	}
	return out, nil
}

// ParseChannelList parses a comma-separated list of channel indices.
func ParseChannelList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("malformed channel index %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}
