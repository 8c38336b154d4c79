package decode

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/capture"
)

// ErrChannelMappingMismatch marks a decoder signal bound to a channel name
// the capture's channel map does not contain.
var ErrChannelMappingMismatch = errors.New("channel mapping mismatch")

// Level is a wait condition on a single channel, evaluated against a
// consecutive sample pair.
type Level int

const (
	Low Level = iota
	High
	Rising
	Falling
	Edge
	Stable
)

// Cond is one decoder wait condition: either skip a fixed number of
// samples, or a conjunction of per-channel level requirements.
type Cond struct {
	Skip     int
	Channels map[int]Level
}

// Feed is the producer side of the decoder contract. The driver walks the
// packed sample array; the decoder asks it to advance until a condition
// matches, then emits annotations for the sample range it consumed.
type Feed interface {
	// Wait advances through the samples until any condition matches and
	// returns the current packed sample plus a matched flag per condition.
	// An empty condition list advances exactly one sample. io.EOF signals
	// end of capture.
	Wait(conds []Cond) (sample uint64, matched []bool, err error)

	// SampleNum is the index of the sample Wait last returned.
	SampleNum() int

	SampleRate() int
	NumChannels() int

	// Pin resolves a decoder signal name to its channel index.
	Pin(signal string) (int, bool)

	// Put emits one annotation covering [start, end).
	Put(start, end int, class, text string)
}

// Decoder is the narrow contract an external protocol decoder implements.
type Decoder interface {
	ID() string
	// Signals lists the channel roles the decoder needs bound (e.g. "sda",
	// "scl" for I2C).
	Signals() []string
	// Decode consumes the feed until io.EOF.
	Decode(f Feed) error
}

// MapSignals resolves signal→channel-name bindings against a capture's
// channel map. Every binding must name a channel the capture knows.
func MapSignals(bindings map[string]string, c *capture.Capture) (map[string]int, error) {
	pins := make(map[string]int, len(bindings))
	for signal, name := range bindings {
		idx, ok := c.ChannelIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: signal %q bound to unknown channel %q (capture has: %v)",
				ErrChannelMappingMismatch, signal, name, c.ChannelNames)
		}
		pins[signal] = idx
	}
	return pins, nil
}

// feed drives a decoder over an in-memory packed sample array.
type feed struct {
	packed      []uint64
	sampleRate  int
	numChannels int
	pins        map[string]int

	pos      int
	last     uint64
	haveLast bool

	decoderID string
	filter    map[string]bool // nil passes every class
	out       []Annotation
}

func (f *feed) SampleNum() int   { return f.pos }
func (f *feed) SampleRate() int  { return f.sampleRate }
func (f *feed) NumChannels() int { return f.numChannels }

func (f *feed) Pin(signal string) (int, bool) {
	idx, ok := f.pins[signal]
	return idx, ok
}

func (f *feed) Put(start, end int, class, text string) {
	if f.filter != nil && !f.filter[class] {
		return
	}
	f.out = append(f.out, Annotation{
		Decoder: f.decoderID,
		Class:   class,
		Start:   start,
		End:     end,
		Text:    text,
	})
}

func (f *feed) Wait(conds []Cond) (uint64, []bool, error) {
	skip := make([]int, len(conds))
	for i, c := range conds {
		skip[i] = c.Skip
	}

	for {
		f.pos++
		if f.pos >= len(f.packed) {
			return 0, nil, io.EOF
		}
		cur := f.packed[f.pos]
		if !f.haveLast {
			f.last = cur
			f.haveLast = true
		}

		matched := make([]bool, len(conds))
		any := len(conds) == 0
		for i, c := range conds {
			if c.Skip > 0 {
				skip[i]--
				matched[i] = skip[i] == 0
			} else {
				matched[i] = condMatches(c, f.last, cur)
			}
			any = any || matched[i]
		}

		f.last = cur
		if any {
			return cur, matched, nil
		}
	}
}

func condMatches(c Cond, last, cur uint64) bool {
	if len(c.Channels) == 0 {
		return false
	}
	for ch, lv := range c.Channels {
		lb := capture.Bit(last, ch)
		cb := capture.Bit(cur, ch)
		ok := false
		switch lv {
		case Low:
			ok = cb == 0
		case High:
			ok = cb == 1
		case Rising:
			ok = lb == 0 && cb == 1
		case Falling:
			ok = lb == 1 && cb == 0
		case Edge:
			ok = lb != cb
		case Stable:
			ok = lb == cb
		}
		if !ok {
			return false
		}
	}
	return true
}

// Run feeds packed samples to a decoder and collects its annotation
// stream. classFilter, when non-empty, restricts which annotation classes
// are collected; both decode paths share this semantics. A decoder
// returning io.EOF (or nil) terminated normally at end of capture.
func Run(dec Decoder, packed []uint64, numChannels, sampleRate int, pins map[string]int, classFilter []string) ([]Annotation, error) {
	f := &feed{
		packed:      packed,
		sampleRate:  sampleRate,
		numChannels: numChannels,
		pins:        pins,
		pos:         -1,
		decoderID:   dec.ID(),
	}
	if len(classFilter) > 0 {
		f.filter = make(map[string]bool, len(classFilter))
		for _, class := range classFilter {
			f.filter[class] = true
		}
	}

	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoder %s: %w", dec.ID(), err)
	}
	return f.out, nil
}

// Registry is the closed set of in-process decoders the native path can
// run. Protocols outside the set fall back to the CLI.
type Registry struct {
	mu       sync.Mutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

func (r *Registry) Register(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[d.ID()] = d
}

func (r *Registry) Lookup(id string) (Decoder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decoders[id]
	return d, ok
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.decoders))
	for id := range r.decoders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
