package decode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// writeStub creates an executable standing in for sigrok-cli.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "sigrok-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("writing stub: %v", err)
	}
	return path
}

func TestDecoderSpec(t *testing.T) {
	tests := []struct {
		name     string
		decoder  string
		bindings map[string]string
		options  map[string]string
		want     string
	}{
		{
			name:    "bare decoder",
			decoder: "i2c",
			want:    "i2c",
		},
		{
			name:     "bindings sorted",
			decoder:  "i2c",
			bindings: map[string]string{"sda": "D0", "scl": "D1"},
			want:     "i2c:scl=D1:sda=D0",
		},
		{
			name:     "bindings before options",
			decoder:  "uart",
			bindings: map[string]string{"rx": "D0"},
			options:  map[string]string{"baudrate": "115200"},
			want:     "uart:rx=D0:baudrate=115200",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecoderSpec(tt.decoder, tt.bindings, tt.options); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeReturnsStdout(t *testing.T) {
	stub := writeStub(t, `printf 'i2c-1: Start\ni2c-1: Stop\n'`)
	cli := NewCLI(stub, 0)

	out, err := cli.Decode(context.Background(), "cap_001.sr", "i2c",
		map[string]string{"sda": "D0"}, nil, "i2c=start:stop")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != "i2c-1: Start\ni2c-1: Stop\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestDecodePassesArgs(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	stub := writeStub(t, `echo "$@" > `+argsFile)
	cli := NewCLI(stub, 0)

	if _, err := cli.Decode(context.Background(), "cap_001.sr", "i2c", nil, nil, "i2c=start"); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("reading recorded args: %v", err)
	}
	want := "-i cap_001.sr -P i2c -A i2c=start\n"
	if string(got) != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestBackendUnavailable(t *testing.T) {
	cli := NewCLI("definitely-not-a-real-binary-4f3a", 0)

	_, err := cli.Decode(context.Background(), "cap_001.sr", "i2c", nil, nil, "")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("got %v, want ErrBackendUnavailable", err)
	}
}

func TestProcessErrorCarriesStderr(t *testing.T) {
	stub := writeStub(t, `echo "srd: Decoder not found" >&2; exit 3`)
	cli := NewCLI(stub, 0)

	_, err := cli.Decode(context.Background(), "cap_001.sr", "nope", nil, nil, "")
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("got %v, want *ProcessError", err)
	}
	if procErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", procErr.ExitCode)
	}
	if procErr.Stderr != "srd: Decoder not found\n" {
		t.Errorf("Stderr = %q", procErr.Stderr)
	}
}

func TestDecodeTimeout(t *testing.T) {
	// Drop the inherited stdout pipe so killing the shell does not leave
	// the sleep child holding it open.
	stub := writeStub(t, "exec >/dev/null 2>&1\nsleep 5")
	cli := NewCLI(stub, 50*time.Millisecond)

	start := time.Now()
	_, err := cli.Decode(context.Background(), "cap_001.sr", "i2c", nil, nil, "")
	if !errors.Is(err, ErrDecodeTimeout) {
		t.Fatalf("got %v, want ErrDecodeTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %s", elapsed)
	}
}

func TestRunCaptureArgs(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	stub := writeStub(t, `echo "$@" > `+argsFile)
	cli := NewCLI(stub, 0)

	req := CaptureRequest{
		Driver:     "fx2lafw",
		Channels:   "D0,D1",
		SampleRate: "1m",
		NumSamples: 2048,
		Triggers:   "D0=f",
		OutputFile: "cap_001.sr",
	}
	if err := cli.RunCapture(context.Background(), req); err != nil {
		t.Fatalf("RunCapture: %v", err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("reading recorded args: %v", err)
	}
	want := "--driver fx2lafw --config samplerate=1m --channels D0,D1 --samples 2048 --triggers D0=f --output-file cap_001.sr\n"
	if string(got) != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestRunCaptureDefaultSamples(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	stub := writeStub(t, `echo "$@" > `+argsFile)
	cli := NewCLI(stub, 0)

	req := CaptureRequest{Driver: "demo", SampleRate: "1m", OutputFile: "out.sr"}
	if err := cli.RunCapture(context.Background(), req); err != nil {
		t.Fatalf("RunCapture: %v", err)
	}

	got, _ := os.ReadFile(argsFile)
	want := "--driver demo --config samplerate=1m --samples 1024 --output-file out.sr\n"
	if string(got) != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestListDecoders(t *testing.T) {
	stub := writeStub(t, `cat <<'EOF'
Supported protocol decoders:
  i2c                  Inter-Integrated Circuit
  spi                  Serial Peripheral Interface
  uart                 Universal Asynchronous Receiver/Transmitter
Supported output formats:
  bits                 Bits
EOF`)
	cli := NewCLI(stub, 0)

	decoders, err := cli.ListDecoders(context.Background())
	if err != nil {
		t.Fatalf("ListDecoders: %v", err)
	}

	want := []DecoderInfo{
		{ID: "i2c", Description: "Inter-Integrated Circuit"},
		{ID: "spi", Description: "Serial Peripheral Interface"},
		{ID: "uart", Description: "Universal Asynchronous Receiver/Transmitter"},
	}
	if diff := cmp.Diff(want, decoders); diff != "" {
		t.Errorf("decoders (-want +got):\n%s", diff)
	}
}

func TestScanDevices(t *testing.T) {
	stub := writeStub(t, `cat <<'EOF'
The following devices were found:
fx2lafw - Saleae Logic with 8 channels: D0 D1 D2 D3 D4 D5 D6 D7
EOF`)
	cli := NewCLI(stub, 0)

	devices, err := cli.ScanDevices(context.Background(), "fx2lafw")
	if err != nil {
		t.Fatalf("ScanDevices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}
	if devices[0].Driver != "fx2lafw" {
		t.Errorf("Driver = %q", devices[0].Driver)
	}
}
