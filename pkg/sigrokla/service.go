package sigrokla

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/logger"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/capture"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/format"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/storage"
)

// session is the default implementation of the Service interface. One
// session owns one capture store (and its temp dir) for its lifetime.
type session struct {
	id       string
	store    *capture.Store
	catalog  *storage.Catalog
	backend  CaptureBackend
	registry *decode.Registry
	log      Logger
	config   *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	store, err := capture.NewStore(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture store: %w", err)
	}
	if cfg.MaxCaptures > 0 {
		store.SetLimit(cfg.MaxCaptures)
	}

	backend := cfg.Backend
	if backend == nil {
		backend = decode.NewCLI(cfg.CLIPath, cfg.DecodeTimeout)
	}

	var catalog *storage.Catalog
	if cfg.CatalogPath != "" {
		catalog, err = storage.Open(cfg.CatalogPath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to open capture catalog: %w", err)
		}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = decode.NewRegistry()
	}

	return &session{
		id:       uuid.NewString(),
		store:    store,
		catalog:  catalog,
		backend:  backend,
		registry: registry,
		log:      cfg.Logger,
		config:   cfg,
	}, nil
}

func (s *session) SessionID() string { return s.id }

// Capture acquires samples into a new .sr file via the backend.
func (s *session) Capture(ctx context.Context, opts CaptureOptions) (string, error) {
	_, out, err := s.capture(ctx, opts)
	return out, err
}

func (s *session) capture(ctx context.Context, opts CaptureOptions) (*capture.Capture, string, error) {
	cap := s.store.NewCapture(opts.Description)
	s.log.Infof("Starting capture %s (driver=%s rate=%s)", cap.ID, opts.Driver, opts.SampleRate)

	req := decode.CaptureRequest{
		Driver:         opts.Driver,
		Channels:       opts.Channels,
		SampleRate:     opts.SampleRate,
		NumSamples:     opts.NumSamples,
		DurationMS:     opts.DurationMS,
		Triggers:       opts.Triggers,
		WaitTrigger:    opts.WaitTrigger,
		TriggerTimeout: opts.TriggerTimeout,
		OutputFile:     cap.FilePath,
	}
	if err := s.backend.RunCapture(ctx, req); err != nil {
		s.store.Evict(cap.ID)
		return nil, "", fmt.Errorf("capture failed: %w", err)
	}

	if s.catalog != nil {
		err := s.catalog.RecordCapture(storage.CaptureRecord{
			SessionID:   s.id,
			CaptureID:   cap.ID,
			Description: cap.Description,
			FilePath:    cap.FilePath,
			NumSamples:  opts.NumSamples,
			CreatedAt:   cap.CreatedAt,
		})
		if err != nil {
			s.log.Warnf("Failed to record capture %s in catalog: %v", cap.ID, err)
		}
	}

	size := "unknown size"
	if n := cap.FileSize(); n > 0 {
		size = humanize.Bytes(uint64(n))
	}
	s.log.Infof("Capture %s complete (%s)", cap.ID, size)

	var b strings.Builder
	fmt.Fprintf(&b, "Capture complete. ID: %s\n", cap.ID)
	fmt.Fprintf(&b, "File: %s (%s)\n", cap.FilePath, size)
	if opts.NumSamples > 0 {
		fmt.Fprintf(&b, "Requested samples: %s\n", humanize.Comma(int64(opts.NumSamples)))
	}
	if opts.DurationMS > 0 {
		fmt.Fprintf(&b, "Duration: %d ms\n", opts.DurationMS)
	}
	return cap, b.String(), nil
}

// CaptureAndDecode acquires samples and immediately decodes them.
func (s *session) CaptureAndDecode(ctx context.Context, opts CaptureOptions, dec DecodeOptions) (string, error) {
	cap, out, err := s.capture(ctx, opts)
	if err != nil {
		return "", err
	}
	decoded, err := s.DecodeProtocol(ctx, cap.ID, dec)
	if err != nil {
		return "", err
	}
	return out + "\n" + decoded, nil
}

// DecodeProtocol runs a protocol decoder over a stored capture and
// shapes the output for the requested detail level.
func (s *session) DecodeProtocol(ctx context.Context, captureID string, opts DecodeOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	cap, err := s.store.Get(captureID)
	if err != nil {
		return "", err
	}

	filter := opts.AnnotationFilter
	if filter == "" && opts.detail() == DetailSummary {
		filter = decode.SummaryFilter(opts.Decoder)
	}
	key := capture.CacheKey(opts.Decoder, filter)

	// Decoder options change the output, so only the plain runs are
	// safe to cache under the (decoder, filter) key.
	cacheable := len(opts.DecoderOptions) == 0

	var anns []decode.Annotation
	rawText, hit := s.lookupCached(cap.ID, key, cacheable)
	if !hit {
		anns, rawText, err = s.runDecode(ctx, cap, opts, filter)
		if err != nil {
			return "", err
		}
		if cacheable {
			if err := s.store.CacheDecode(cap.ID, key, rawText); err != nil {
				s.log.Warnf("Failed to cache decode for %s: %v", cap.ID, err)
			}
			if s.catalog != nil {
				err := s.catalog.RecordDecode(storage.DecodeRecord{
					SessionID: s.id,
					CaptureID: cap.ID,
					CacheKey:  key,
					Output:    rawText,
				})
				if err != nil {
					s.log.Warnf("Failed to record decode for %s in catalog: %v", cap.ID, err)
				}
			}
		}
	}
	if anns == nil {
		anns = decode.ParseLines(rawText)
	}

	if opts.detail() == DetailRaw {
		return format.DecodedText(rawText, format.DefaultMaxRawLines), nil
	}
	return format.Summary(anns, opts.Decoder, 0), nil
}

func (s *session) lookupCached(captureID, key string, cacheable bool) (string, bool) {
	if !cacheable {
		return "", false
	}
	if text, ok, err := s.store.LookupDecode(captureID, key); err == nil && ok {
		s.log.Debugf("Decode cache hit for %s (%s)", captureID, key)
		return text, true
	}
	if s.catalog == nil {
		return "", false
	}
	text, ok, err := s.catalog.LookupDecode(s.id, captureID, key)
	if err != nil {
		s.log.Warnf("Catalog lookup failed for %s: %v", captureID, err)
		return "", false
	}
	if !ok {
		return "", false
	}
	s.store.CacheDecode(captureID, key, text)
	return text, true
}

// runDecode prefers the in-process decoder when the capture holds
// sample data and a native decoder is registered, otherwise shells out
// to the backend against the .sr file.
func (s *session) runDecode(ctx context.Context, cap *capture.Capture, opts DecodeOptions, filter string) ([]decode.Annotation, string, error) {
	if cap.HasData() && len(opts.DecoderOptions) == 0 {
		if dec, ok := s.registry.Lookup(opts.Decoder); ok {
			pins, err := decode.MapSignals(opts.ChannelBindings, cap)
			if err != nil {
				return nil, "", err
			}
			packed, err := cap.Packed()
			if err != nil {
				return nil, "", err
			}
			anns, err := decode.Run(dec, packed, cap.NumChannels, cap.SampleRate, pins, annotationClasses(filter))
			if err != nil {
				return nil, "", fmt.Errorf("decoding %s on %s: %w", opts.Decoder, cap.ID, err)
			}
			s.log.Debugf("Native %s decode of %s produced %d annotations", opts.Decoder, cap.ID, len(anns))
			return anns, decode.RenderLines(anns), nil
		}
	}

	text, err := s.backend.Decode(ctx, cap.FilePath, opts.Decoder, opts.ChannelBindings, opts.DecoderOptions, filter)
	if err != nil {
		return nil, "", err
	}
	return nil, text, nil
}

// annotationClasses extracts the class names from a sigrok-cli -A
// filter such as "i2c=address-read:address-write:start:stop".
func annotationClasses(filter string) []string {
	if filter == "" {
		return nil
	}
	if _, rest, ok := strings.Cut(filter, "="); ok {
		filter = rest
	}
	var classes []string
	for _, c := range strings.Split(filter, ":") {
		if c = strings.TrimSpace(c); c != "" {
			classes = append(classes, c)
		}
	}
	return classes
}

// GetRawSamples returns a window of exported samples.
func (s *session) GetRawSamples(ctx context.Context, captureID string, opts RawSampleOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	cap, err := s.store.Get(captureID)
	if err != nil {
		return "", err
	}

	var lines []string
	if raw, ok := cap.Raw(); ok {
		lines, err = capture.Export(raw, cap.NumChannels, opts.Format, opts.Channels)
		if err != nil {
			return "", err
		}
	} else {
		outputFormat := opts.Format
		if outputFormat == "" {
			outputFormat = "bits"
		}
		out, err := s.backend.ExportData(ctx, cap.FilePath, outputFormat, channelCSV(opts.Channels))
		if err != nil {
			return "", err
		}
		lines = splitNonEmpty(out)
	}

	count := opts.Count
	if count <= 0 {
		count = format.DefaultMaxRawLines
	}
	return format.WindowLines(lines, opts.Start, count).String(), nil
}

func channelCSV(channels []int) string {
	if len(channels) == 0 {
		return ""
	}
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = strconv.Itoa(ch)
	}
	return strings.Join(parts, ",")
}

func splitNonEmpty(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// AnalyzeCapture renders the per-channel activity table.
func (s *session) AnalyzeCapture(ctx context.Context, captureID string) (string, error) {
	cap, err := s.store.Get(captureID)
	if err != nil {
		return "", err
	}
	if cap.HasData() {
		packed, err := cap.Packed()
		if err != nil {
			return "", err
		}
		return capture.Summarize(packed, cap.NumChannels, cap.ChannelNames), nil
	}
	out, err := s.backend.ExportData(ctx, cap.FilePath, "bits", "")
	if err != nil {
		return "", err
	}
	return capture.SummarizeBits(out), nil
}

// ListCaptures lists this session's captures in insertion order.
func (s *session) ListCaptures(ctx context.Context) (string, error) {
	caps := s.store.List()
	if len(caps) == 0 {
		return "No captures in this session.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Captures (%d):\n", len(caps))
	for _, c := range caps {
		fmt.Fprintf(&b, "  %s", c.ID)
		if c.NumChannels > 0 {
			fmt.Fprintf(&b, "  %d ch", c.NumChannels)
		}
		if n := c.NumSamples(); n > 0 {
			fmt.Fprintf(&b, "  %s samples", humanize.Comma(int64(n)))
		}
		if n := c.FileSize(); n > 0 {
			fmt.Fprintf(&b, "  %s", humanize.Bytes(uint64(n)))
		}
		if c.Description != "" {
			fmt.Fprintf(&b, "  %s", c.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ListDecoders lists backend decoders plus any registered in-process ones.
func (s *session) ListDecoders(ctx context.Context) (string, error) {
	infos, err := s.backend.ListDecoders(ctx)
	if err != nil && !errors.Is(err, decode.ErrBackendUnavailable) {
		return "", err
	}

	var b strings.Builder
	if len(infos) > 0 {
		fmt.Fprintf(&b, "Supported decoders (%d):\n", len(infos))
		for _, info := range infos {
			fmt.Fprintf(&b, "  %s - %s\n", info.ID, info.Description)
		}
	} else {
		b.WriteString("No backend decoders available.\n")
	}
	if ids := s.registry.IDs(); len(ids) > 0 {
		fmt.Fprintf(&b, "In-process decoders: %s\n", strings.Join(ids, ", "))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ScanDevices scans for attached acquisition devices.
func (s *session) ScanDevices(ctx context.Context, driver string) (string, error) {
	devices, err := s.backend.ScanDevices(ctx, driver)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "No devices found.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Devices (%d):\n", len(devices))
	for _, d := range devices {
		fmt.Fprintf(&b, "  %s - %s\n", d.Driver, d.Description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *session) Close() error {
	var errs []error
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
