package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var ErrCaptureNotFound = errors.New("capture not found")

// ErrNoSampleData is returned when a capture holds neither raw nor packed
// samples (file-only captures decoded through the CLI fallback).
var ErrNoSampleData = errors.New("capture has no in-memory sample data")

// Capture is one logical acquisition: sample data in up to two physical
// representations plus metadata. Raw and packed forms always describe the
// same waveform; the packed form is derived lazily and memoized.
type Capture struct {
	ID           string
	FilePath     string // persisted .sr container, may not exist yet
	Description  string
	CreatedAt    time.Time
	SampleRate   int
	NumChannels  int
	ChannelNames []string

	raw    []byte
	packed []uint64
	cache  map[string]string
}

// SetRaw attaches raw backend-layout sample bytes to the capture.
func (c *Capture) SetRaw(raw []byte, numChannels, sampleRate int, channelNames []string) {
	c.raw = raw
	c.packed = nil
	c.NumChannels = numChannels
	c.SampleRate = sampleRate
	c.ChannelNames = channelNames
}

// SetPacked attaches packed integer samples to the capture.
func (c *Capture) SetPacked(packed []uint64, numChannels, sampleRate int, channelNames []string) {
	c.packed = packed
	c.NumChannels = numChannels
	c.SampleRate = sampleRate
	c.ChannelNames = channelNames
}

// Raw returns the raw byte representation if present.
func (c *Capture) Raw() ([]byte, bool) {
	return c.raw, c.raw != nil
}

// Packed returns the packed integer representation, repacking from the raw
// form on first use. The result is memoized on the capture.
func (c *Capture) Packed() ([]uint64, error) {
	if c.packed != nil {
		return c.packed, nil
	}
	if c.raw == nil {
		return nil, fmt.Errorf("%w (%s)", ErrNoSampleData, c.ID)
	}
	packed, err := ToPacked(c.raw, c.NumChannels)
	if err != nil {
		return nil, err
	}
	c.packed = packed
	return c.packed, nil
}

// HasData reports whether any in-memory representation is present.
func (c *Capture) HasData() bool {
	return c.raw != nil || c.packed != nil
}

// NumSamples returns the sample count of whichever representation exists.
func (c *Capture) NumSamples() int {
	if c.packed != nil {
		return len(c.packed)
	}
	if c.raw != nil && c.NumChannels > 0 {
		return len(c.raw) / UnitSize(c.NumChannels)
	}
	return 0
}

// ChannelIndex resolves a channel name from the capture's channel map.
func (c *Capture) ChannelIndex(name string) (int, bool) {
	for i, n := range c.ChannelNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// FileSize returns the on-disk size of the persisted container, or 0.
func (c *Capture) FileSize() int64 {
	if c.FilePath == "" {
		return 0
	}
	fi, err := os.Stat(c.FilePath)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// CacheKey builds the decode-cache key for a decoder/filter combination.
func CacheKey(decoder, annotationFilter string) string {
	return decoder + "|" + annotationFilter
}

// Store owns a session's captures. IDs are sequential (cap_001, cap_002,
// ...) and never reused, even after eviction. The store serializes its own
// bookkeeping; concurrent hosts need no lock beyond this one because ID
// sequencing is the only shared mutable state.
type Store struct {
	mu       sync.Mutex
	baseDir  string
	ownsDir  bool
	captures map[string]*Capture
	order    []string
	counter  int
	limit    int // 0 = unlimited
}

// NewStore creates a store rooted at baseDir. With an empty baseDir a
// temp directory is created and removed again on Close.
func NewStore(baseDir string) (*Store, error) {
	s := &Store{captures: make(map[string]*Capture)}
	if baseDir == "" {
		dir, err := os.MkdirTemp("", "sigrok_logicanalyzer_mcp_")
		if err != nil {
			return nil, fmt.Errorf("creating capture dir: %w", err)
		}
		s.baseDir = dir
		s.ownsDir = true
	} else {
		if err := os.MkdirAll(baseDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating capture dir: %w", err)
		}
		s.baseDir = baseDir
	}
	return s, nil
}

func (s *Store) BaseDir() string {
	return s.baseDir
}

// SetLimit caps the number of live captures. When exceeded the
// least-recently-created capture is evicted. Zero means unlimited.
func (s *Store) SetLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = n
}

// NewCapture allocates the next capture slot and its .sr file path.
func (s *Store) NewCapture(description string) *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id := fmt.Sprintf("cap_%03d", s.counter)
	c := &Capture{
		ID:          id,
		FilePath:    filepath.Join(s.baseDir, id+".sr"),
		Description: description,
		CreatedAt:   time.Now(),
		cache:       make(map[string]string),
	}
	s.captures[id] = c
	s.order = append(s.order, id)

	if s.limit > 0 && len(s.order) > s.limit {
		s.evictLocked(s.order[0])
	}
	return c
}

// Get returns a capture by ID. The error lists the live IDs so a caller
// holding a stale handle can recover.
func (s *Store) Get(id string) (*Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.captures[id]
	if !ok {
		available := strings.Join(s.order, ", ")
		if available == "" {
			available = "(none)"
		}
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrCaptureNotFound, id, available)
	}
	return c, nil
}

// List returns all live captures in insertion order.
func (s *Store) List() []*Capture {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Capture, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.captures[id])
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Evict removes a capture and its on-disk container. The ID is retired,
// never reassigned.
func (s *Store) Evict(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.captures[id]; !ok {
		return fmt.Errorf("%w: %q", ErrCaptureNotFound, id)
	}
	s.evictLocked(id)
	return nil
}

func (s *Store) evictLocked(id string) {
	c := s.captures[id]
	delete(s.captures, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if c != nil && c.FilePath != "" {
		os.Remove(c.FilePath)
	}
}

// CacheDecode stores raw decoder output for a capture. The cache is
// advisory; it is only ever written after a decode fully succeeded.
func (s *Store) CacheDecode(id, key, text string) error {
	c, err := s.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.cache[key] = text
	return nil
}

// LookupDecode returns cached decoder output. A miss is not an error.
func (s *Store) LookupDecode(id, key string) (string, bool, error) {
	c, err := s.Get(id)
	if err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := c.cache[key]
	return text, ok, nil
}

// Close drops all captures and removes the temp directory if owned.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.captures = make(map[string]*Capture)
	s.order = nil
	if s.ownsDir {
		return os.RemoveAll(s.baseDir)
	}
	return nil
}
