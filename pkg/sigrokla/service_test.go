package sigrokla

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/capture"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

// stubBackend satisfies CaptureBackend without a sigrok-cli binary.
type stubBackend struct {
	captureErr  error
	decodeOut   string
	decodeErr   error
	exportOut   string
	decoders    []decode.DecoderInfo
	devices     []decode.DeviceInfo
	decodeCalls int
	lastDecoder string
	lastFilter  string
}

func (b *stubBackend) RunCapture(ctx context.Context, req decode.CaptureRequest) error {
	if b.captureErr != nil {
		return b.captureErr
	}
	return os.WriteFile(req.OutputFile, []byte("sr-container"), 0o644)
}

func (b *stubBackend) Decode(ctx context.Context, inputFile, decoder string, bindings, options map[string]string, annotationFilter string) (string, error) {
	b.decodeCalls++
	b.lastDecoder = decoder
	b.lastFilter = annotationFilter
	if b.decodeErr != nil {
		return "", b.decodeErr
	}
	return b.decodeOut, nil
}

func (b *stubBackend) ExportData(ctx context.Context, inputFile, outputFormat, channels string) (string, error) {
	return b.exportOut, nil
}

func (b *stubBackend) ListDecoders(ctx context.Context) ([]decode.DecoderInfo, error) {
	return b.decoders, nil
}

func (b *stubBackend) ScanDevices(ctx context.Context, driver string) ([]decode.DeviceInfo, error) {
	return b.devices, nil
}

func newTestService(t *testing.T, backend CaptureBackend, opts ...Option) Service {
	t.Helper()
	opts = append([]Option{
		WithStoreDir(t.TempDir()),
		WithBackend(backend),
	}, opts...)
	svc, err := NewService(opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestCaptureAssignsSequentialIDs(t *testing.T) {
	svc := newTestService(t, &stubBackend{})
	ctx := context.Background()

	out, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !strings.Contains(out, "Capture complete. ID: cap_001") {
		t.Errorf("capture output wrong:\n%s", out)
	}

	out, err = svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !strings.Contains(out, "cap_002") {
		t.Errorf("second capture not cap_002:\n%s", out)
	}
}

func TestCaptureFailureLeavesNoSlot(t *testing.T) {
	backend := &stubBackend{captureErr: errors.New("device busy")}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err == nil {
		t.Fatal("capture error swallowed")
	}

	out, err := svc.ListCaptures(ctx)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if out != "No captures in this session." {
		t.Errorf("failed capture left a slot:\n%s", out)
	}
}

func TestDecodeProtocolUnknownCapture(t *testing.T) {
	svc := newTestService(t, &stubBackend{})

	_, err := svc.DecodeProtocol(context.Background(), "cap_999", DecodeOptions{Decoder: "i2c"})
	if !errors.Is(err, capture.ErrCaptureNotFound) {
		t.Fatalf("got %v, want ErrCaptureNotFound", err)
	}
}

func TestDecodeProtocolSummary(t *testing.T) {
	backend := &stubBackend{decodeOut: "i2c-1: Start\ni2c-1: Address write: 59\ni2c-1: Data write: 0B\ni2c-1: Data write: 00\ni2c-1: Stop\n"}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	out, err := svc.DecodeProtocol(ctx, "cap_001", DecodeOptions{Decoder: "i2c"})
	if err != nil {
		t.Fatalf("DecodeProtocol: %v", err)
	}
	if !strings.Contains(out, "#001  W 0x59: [0B 00]") {
		t.Errorf("summary output wrong:\n%s", out)
	}
	if backend.lastFilter != decode.SummaryFilter("i2c") {
		t.Errorf("summary filter not applied, got %q", backend.lastFilter)
	}
}

func TestDecodeProtocolRawDetail(t *testing.T) {
	backend := &stubBackend{decodeOut: "i2c-1: Start\ni2c-1: Stop\n"}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	out, err := svc.DecodeProtocol(ctx, "cap_001", DecodeOptions{Decoder: "i2c", Detail: DetailRaw})
	if err != nil {
		t.Fatalf("DecodeProtocol: %v", err)
	}
	if !strings.Contains(out, "i2c-1: Start") {
		t.Errorf("raw detail lost annotation lines:\n%s", out)
	}
	// Raw detail with no explicit filter must not inherit the summary one.
	if backend.lastFilter != "" {
		t.Errorf("raw detail applied filter %q", backend.lastFilter)
	}
}

func TestDecodeProtocolCachesResult(t *testing.T) {
	backend := &stubBackend{decodeOut: "i2c-1: Start\ni2c-1: Stop\n"}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	opts := DecodeOptions{Decoder: "i2c"}
	if _, err := svc.DecodeProtocol(ctx, "cap_001", opts); err != nil {
		t.Fatalf("first decode: %v", err)
	}
	if _, err := svc.DecodeProtocol(ctx, "cap_001", opts); err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if backend.decodeCalls != 1 {
		t.Errorf("decode ran %d times, want 1 (cache miss)", backend.decodeCalls)
	}
}

func TestDecodeProtocolOptionsBypassCache(t *testing.T) {
	backend := &stubBackend{decodeOut: "uart-1: TX data: 48\n"}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	opts := DecodeOptions{Decoder: "uart", DecoderOptions: map[string]string{"baudrate": "115200"}}
	for i := 0; i < 2; i++ {
		if _, err := svc.DecodeProtocol(ctx, "cap_001", opts); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
	}
	if backend.decodeCalls != 2 {
		t.Errorf("optioned decode hit the cache: %d calls", backend.decodeCalls)
	}
}

func TestDecodeTimeoutNotCached(t *testing.T) {
	backend := &stubBackend{decodeErr: decode.ErrDecodeTimeout}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	opts := DecodeOptions{Decoder: "i2c"}
	if _, err := svc.DecodeProtocol(ctx, "cap_001", opts); !errors.Is(err, decode.ErrDecodeTimeout) {
		t.Fatalf("got %v, want ErrDecodeTimeout", err)
	}

	// After the backend recovers the same key must decode again, not
	// serve a cached failure.
	backend.decodeErr = nil
	backend.decodeOut = "i2c-1: Start\ni2c-1: Stop\n"
	out, err := svc.DecodeProtocol(ctx, "cap_001", opts)
	if err != nil {
		t.Fatalf("decode after recovery: %v", err)
	}
	if !strings.Contains(out, "I2C:") {
		t.Errorf("recovered decode output wrong:\n%s", out)
	}
	if backend.decodeCalls != 2 {
		t.Errorf("decode calls = %d, want 2", backend.decodeCalls)
	}
}

// fixedDecoder emits one annotation regardless of input.
type fixedDecoder struct{}

func (fixedDecoder) ID() string        { return "i2c" }
func (fixedDecoder) Signals() []string { return []string{"sda", "scl"} }

func (fixedDecoder) Decode(f decode.Feed) error {
	f.Put(0, 1, "start", "Start")
	return nil
}

func TestNativeDecoderPreferred(t *testing.T) {
	backend := &stubBackend{decodeOut: "unused"}
	registry := decode.NewRegistry()
	registry.Register(fixedDecoder{})
	svc := newTestService(t, backend, WithRegistry(registry))
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	sess := svc.(*session)
	cap, err := sess.store.Get("cap_001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cap.SetRaw([]byte{0x03, 0x01, 0x03}, 2, 1_000_000, []string{"D0", "D1"})

	out, err := svc.DecodeProtocol(ctx, "cap_001", DecodeOptions{
		Decoder:         "i2c",
		ChannelBindings: map[string]string{"sda": "D0", "scl": "D1"},
		Detail:          DetailRaw,
	})
	if err != nil {
		t.Fatalf("DecodeProtocol: %v", err)
	}
	if backend.decodeCalls != 0 {
		t.Errorf("native decode fell back to the backend")
	}
	if !strings.Contains(out, "i2c: Start") {
		t.Errorf("native annotations missing:\n%s", out)
	}
}

func TestNativeDecoderMappingMismatch(t *testing.T) {
	registry := decode.NewRegistry()
	registry.Register(fixedDecoder{})
	svc := newTestService(t, &stubBackend{}, WithRegistry(registry))
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	sess := svc.(*session)
	cap, _ := sess.store.Get("cap_001")
	cap.SetRaw([]byte{0x00}, 2, 1_000_000, []string{"D0", "D1"})

	_, err := svc.DecodeProtocol(ctx, "cap_001", DecodeOptions{
		Decoder:         "i2c",
		ChannelBindings: map[string]string{"sda": "D9"},
	})
	if !errors.Is(err, decode.ErrChannelMappingMismatch) {
		t.Fatalf("got %v, want ErrChannelMappingMismatch", err)
	}
}

func TestGetRawSamplesWindowed(t *testing.T) {
	svc := newTestService(t, &stubBackend{})
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	sess := svc.(*session)
	cap, _ := sess.store.Get("cap_001")
	cap.SetRaw([]byte{0x01, 0x02, 0x03, 0x00}, 2, 1_000_000, []string{"D0", "D1"})

	out, err := svc.GetRawSamples(ctx, "cap_001", RawSampleOptions{Start: 1, Count: 2})
	if err != nil {
		t.Fatalf("GetRawSamples: %v", err)
	}
	if !strings.HasPrefix(out, "Samples 1-2 of 4 total (showing 2 samples):") {
		t.Errorf("window header wrong:\n%s", out)
	}
}

func TestGetRawSamplesFileOnlyFallback(t *testing.T) {
	backend := &stubBackend{exportOut: "1010\n0101\n"}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	out, err := svc.GetRawSamples(ctx, "cap_001", RawSampleOptions{})
	if err != nil {
		t.Fatalf("GetRawSamples: %v", err)
	}
	if !strings.Contains(out, "1010") {
		t.Errorf("fallback export missing:\n%s", out)
	}
}

func TestAnalyzeCaptureFileOnlyFallback(t *testing.T) {
	backend := &stubBackend{exportOut: "A0:1111 1111\n"}
	svc := newTestService(t, backend)
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	out, err := svc.AnalyzeCapture(ctx, "cap_001")
	if err != nil {
		t.Fatalf("AnalyzeCapture: %v", err)
	}
	if !strings.Contains(out, "always high") {
		t.Errorf("analysis output wrong:\n%s", out)
	}
}

func TestListCapturesShowsDescriptions(t *testing.T) {
	svc := newTestService(t, &stubBackend{})
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m", Description: "i2c bus probe"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	out, err := svc.ListCaptures(ctx)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if !strings.Contains(out, "Captures (1):") || !strings.Contains(out, "i2c bus probe") {
		t.Errorf("listing wrong:\n%s", out)
	}
}

func TestListDecodersIncludesNative(t *testing.T) {
	backend := &stubBackend{decoders: []decode.DecoderInfo{{ID: "i2c", Description: "Inter-Integrated Circuit"}}}
	registry := decode.NewRegistry()
	registry.Register(fixedDecoder{})
	svc := newTestService(t, backend, WithRegistry(registry))

	out, err := svc.ListDecoders(context.Background())
	if err != nil {
		t.Fatalf("ListDecoders: %v", err)
	}
	if !strings.Contains(out, "i2c - Inter-Integrated Circuit") {
		t.Errorf("backend decoders missing:\n%s", out)
	}
	if !strings.Contains(out, "In-process decoders: i2c") {
		t.Errorf("native decoders missing:\n%s", out)
	}
}

func TestScanDevices(t *testing.T) {
	backend := &stubBackend{devices: []decode.DeviceInfo{{Driver: "fx2lafw", Description: "Saleae Logic"}}}
	svc := newTestService(t, backend)

	out, err := svc.ScanDevices(context.Background(), "fx2lafw")
	if err != nil {
		t.Fatalf("ScanDevices: %v", err)
	}
	if !strings.Contains(out, "fx2lafw - Saleae Logic") {
		t.Errorf("scan output wrong:\n%s", out)
	}

	svc2 := newTestService(t, &stubBackend{})
	out, err = svc2.ScanDevices(context.Background(), "fx2lafw")
	if err != nil {
		t.Fatalf("ScanDevices: %v", err)
	}
	if out != "No devices found." {
		t.Errorf("got %q", out)
	}
}

func TestCaptureAndDecode(t *testing.T) {
	backend := &stubBackend{decodeOut: "i2c-1: Start\ni2c-1: Address write: 59\ni2c-1: Stop\n"}
	svc := newTestService(t, backend)

	out, err := svc.CaptureAndDecode(context.Background(),
		CaptureOptions{Driver: "demo", SampleRate: "1m"},
		DecodeOptions{Decoder: "i2c"})
	if err != nil {
		t.Fatalf("CaptureAndDecode: %v", err)
	}
	if !strings.Contains(out, "Capture complete. ID: cap_001") || !strings.Contains(out, "I2C: 1 transactions") {
		t.Errorf("combined output wrong:\n%s", out)
	}
}

func TestMaxCapturesEviction(t *testing.T) {
	svc := newTestService(t, &stubBackend{}, WithMaxCaptures(2))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
			t.Fatalf("Capture %d: %v", i, err)
		}
	}

	if _, err := svc.DecodeProtocol(ctx, "cap_001", DecodeOptions{Decoder: "i2c"}); !errors.Is(err, capture.ErrCaptureNotFound) {
		t.Errorf("oldest capture not evicted: %v", err)
	}
	out, _ := svc.ListCaptures(ctx)
	if !strings.Contains(out, "Captures (2):") {
		t.Errorf("listing after eviction wrong:\n%s", out)
	}
}

func TestCatalogPersistsDecodeCache(t *testing.T) {
	backend := &stubBackend{decodeOut: "i2c-1: Start\ni2c-1: Stop\n"}
	dir := t.TempDir()
	svc := newTestService(t, backend, WithCatalogPath(dir+"/catalog.sqlite3"))
	ctx := context.Background()

	if _, err := svc.Capture(ctx, CaptureOptions{Driver: "demo", SampleRate: "1m"}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if _, err := svc.DecodeProtocol(ctx, "cap_001", DecodeOptions{Decoder: "i2c"}); err != nil {
		t.Fatalf("DecodeProtocol: %v", err)
	}

	sess := svc.(*session)
	out, ok, err := sess.catalog.LookupDecode(sess.id, "cap_001", capture.CacheKey("i2c", decode.SummaryFilter("i2c")))
	if err != nil || !ok {
		t.Fatalf("catalog lookup: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(out, "i2c-1: Start") {
		t.Errorf("catalog entry wrong: %q", out)
	}
}
