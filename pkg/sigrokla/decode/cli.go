package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// ErrBackendUnavailable means the sigrok-cli binary is not installed or
// not on PATH. Retrying without installing it is pointless.
var ErrBackendUnavailable = errors.New("sigrok-cli not found on PATH (install it, e.g. 'apt install sigrok-cli')")

// ErrDecodeTimeout means the external decode exceeded its wall-clock
// budget. A retry with a longer budget or a smaller capture may work.
var ErrDecodeTimeout = errors.New("sigrok-cli timed out")

// ProcessError reports a sigrok-cli run that exited non-zero, carrying the
// diagnostic text the tool wrote to stderr.
type ProcessError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("sigrok-cli exited with code %d (args: %s): %s",
		e.ExitCode, strings.Join(e.Args, " "), strings.TrimSpace(e.Stderr))
}

// DefaultTimeout bounds every sigrok-cli invocation that does not wait on
// a hardware trigger.
const DefaultTimeout = 30 * time.Second

// CLI wraps sigrok-cli subprocess calls. All interaction with the binary
// is isolated here; each method builds a command, runs it under a
// deadline, and returns stdout.
type CLI struct {
	path    string
	timeout time.Duration
}

// NewCLI creates a wrapper around the given binary name or path; empty
// means "sigrok-cli". A zero timeout means DefaultTimeout.
func NewCLI(path string, timeout time.Duration) *CLI {
	if path == "" {
		path = "sigrok-cli"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CLI{path: path, timeout: timeout}
}

func (c *CLI) find() (string, error) {
	path, err := exec.LookPath(c.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return path, nil
}

// run executes sigrok-cli with a deadline. If ctx carries no deadline the
// given timeout (or the CLI default) applies. The process is killed on
// expiry; partial stdout is discarded and ErrDecodeTimeout returned.
func (c *CLI) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	bin, err := c.find()
	if err != nil {
		return "", err
	}

	if timeout <= 0 {
		timeout = c.timeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w after %s (args: %s)", ErrDecodeTimeout, timeout, strings.Join(args, " "))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ProcessError{Args: args, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", fmt.Errorf("running sigrok-cli: %w", err)
	}
	return stdout.String(), nil
}

// DecoderSpec builds the -P argument: decoder[:sig=ch:key=val...].
// Channel bindings come first, then decoder options, each sorted for a
// stable spec.
func DecoderSpec(decoder string, bindings, options map[string]string) string {
	spec := decoder
	var opts []string
	opts = append(opts, sortedPairs(bindings)...)
	opts = append(opts, sortedPairs(options)...)
	if len(opts) > 0 {
		spec += ":" + strings.Join(opts, ":")
	}
	return spec
}

func sortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}

// Decode runs a protocol decoder against a persisted .sr container and
// returns the textual annotation stream, one annotation per line.
func (c *CLI) Decode(ctx context.Context, inputFile, decoder string, bindings, options map[string]string, annotationFilter string) (string, error) {
	args := []string{"-i", inputFile, "-P", DecoderSpec(decoder, bindings, options)}
	if annotationFilter != "" {
		args = append(args, "-A", annotationFilter)
	}
	return c.run(ctx, 0, args...)
}

// ExportData renders a persisted capture in a text format (bits, hex,
// ascii, csv) with an optional channel filter.
func (c *CLI) ExportData(ctx context.Context, inputFile, outputFormat, channels string) (string, error) {
	args := []string{"-i", inputFile, "--output-format", outputFormat}
	if channels != "" {
		args = append(args, "--channels", channels)
	}
	return c.run(ctx, 0, args...)
}

// CaptureRequest describes one hardware acquisition through sigrok-cli.
type CaptureRequest struct {
	Driver         string
	Channels       string // device channel names, e.g. "A0-A7"
	SampleRate     string // e.g. "1m", "200k"
	NumSamples     int
	DurationMS     int
	Triggers       string // e.g. "A0=r,A1=0"
	WaitTrigger    bool
	TriggerTimeout time.Duration
	OutputFile     string
}

// RunCapture acquires samples into req.OutputFile. Trigger waits extend
// the deadline to req.TriggerTimeout; duration-bound captures get the
// duration plus headroom.
func (c *CLI) RunCapture(ctx context.Context, req CaptureRequest) error {
	args := []string{"--driver", req.Driver, "--config", "samplerate=" + req.SampleRate}

	if req.Channels != "" {
		args = append(args, "--channels", req.Channels)
	}
	switch {
	case req.NumSamples > 0:
		args = append(args, "--samples", fmt.Sprint(req.NumSamples))
	case req.DurationMS > 0:
		args = append(args, "--time", fmt.Sprint(req.DurationMS))
	default:
		args = append(args, "--samples", "1024")
	}
	if req.Triggers != "" {
		args = append(args, "--triggers", req.Triggers)
	}
	if req.WaitTrigger {
		args = append(args, "--wait-trigger")
	}
	args = append(args, "--output-file", req.OutputFile)

	timeout := c.timeout
	switch {
	case req.Triggers != "" && req.TriggerTimeout > 0:
		timeout = req.TriggerTimeout
	case req.DurationMS > 0:
		if d := time.Duration(req.DurationMS)*time.Millisecond + 10*time.Second; d > timeout {
			timeout = d
		}
	}

	_, err := c.run(ctx, timeout, args...)
	return err
}

// DecoderInfo identifies one installed protocol decoder.
type DecoderInfo struct {
	ID          string
	Description string
}

// ListDecoders parses `sigrok-cli --list-supported` for the protocol
// decoder section.
func (c *CLI) ListDecoders(ctx context.Context) ([]DecoderInfo, error) {
	out, err := c.run(ctx, 0, "--list-supported")
	if err != nil {
		return nil, err
	}

	var decoders []DecoderInfo
	inSection := false
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(strings.ToLower(line), "protocol decoders") {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(line, "Supported ") {
			break
		}
		if !inSection || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		info := DecoderInfo{ID: fields[0]}
		if len(fields) > 1 {
			info.Description = strings.Join(fields[1:], " ")
		}
		decoders = append(decoders, info)
	}
	return decoders, nil
}

// DeviceInfo is one scan result.
type DeviceInfo struct {
	Driver      string
	Description string
}

// ScanDevices runs a device scan for the given driver.
func (c *CLI) ScanDevices(ctx context.Context, driver string) ([]DeviceInfo, error) {
	out, err := c.run(ctx, 0, "--driver", driver, "--scan")
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "The following") {
			continue
		}
		devices = append(devices, DeviceInfo{Driver: driver, Description: line})
	}
	return devices, nil
}
