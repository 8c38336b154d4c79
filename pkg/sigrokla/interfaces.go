package sigrokla

import (
	"context"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

type Service interface {
	Capture(ctx context.Context, opts CaptureOptions) (string, error)
	CaptureAndDecode(ctx context.Context, opts CaptureOptions, dec DecodeOptions) (string, error)
	DecodeProtocol(ctx context.Context, captureID string, opts DecodeOptions) (string, error)
	GetRawSamples(ctx context.Context, captureID string, opts RawSampleOptions) (string, error)
	AnalyzeCapture(ctx context.Context, captureID string) (string, error)
	ListCaptures(ctx context.Context) (string, error)
	ListDecoders(ctx context.Context) (string, error)
	ScanDevices(ctx context.Context, driver string) (string, error)
	SessionID() string
	Close() error
}

// CaptureBackend is the port to the acquisition/decoding toolchain.
// *decode.CLI is the production implementation.
type CaptureBackend interface {
	RunCapture(ctx context.Context, req decode.CaptureRequest) error
	Decode(ctx context.Context, inputFile, decoder string, bindings, options map[string]string, annotationFilter string) (string, error)
	ExportData(ctx context.Context, inputFile, outputFormat, channels string) (string, error)
	ListDecoders(ctx context.Context) ([]decode.DecoderInfo, error)
	ScanDevices(ctx context.Context, driver string) ([]decode.DeviceInfo, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
