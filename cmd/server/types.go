package main

import (
	"fmt"
	"time"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla"
)

// MaxRequestSamples caps a single acquisition request.
const MaxRequestSamples = 10_000_000

// CaptureRequest is the request body for POST /api/captures.
type CaptureRequest struct {
	Driver           string `json:"driver"`
	Channels         string `json:"channels,omitempty"`
	SampleRate       string `json:"sample_rate,omitempty"`
	NumSamples       int    `json:"num_samples,omitempty"`
	DurationMS       int    `json:"duration_ms,omitempty"`
	Triggers         string `json:"triggers,omitempty"`
	WaitTrigger      bool   `json:"wait_trigger,omitempty"`
	TriggerTimeoutMS int    `json:"trigger_timeout_ms,omitempty"`
	Description      string `json:"description,omitempty"`
}

func (r *CaptureRequest) Validate() error {
	if r.Driver == "" {
		return fmt.Errorf("driver is required")
	}
	if r.NumSamples < 0 {
		return fmt.Errorf("num_samples must be >= 0")
	}
	if r.NumSamples > MaxRequestSamples {
		return fmt.Errorf("num_samples too large: %d (maximum: %d)", r.NumSamples, MaxRequestSamples)
	}
	if r.DurationMS < 0 {
		return fmt.Errorf("duration_ms must be >= 0")
	}
	return nil
}

func (r *CaptureRequest) toOptions() sigrokla.CaptureOptions {
	return sigrokla.CaptureOptions{
		Driver:         r.Driver,
		Channels:       r.Channels,
		SampleRate:     r.SampleRate,
		NumSamples:     r.NumSamples,
		DurationMS:     r.DurationMS,
		Triggers:       r.Triggers,
		WaitTrigger:    r.WaitTrigger,
		TriggerTimeout: time.Duration(r.TriggerTimeoutMS) * time.Millisecond,
		Description:    r.Description,
	}
}

// DecodeRequest is the request body for POST /api/captures/{id}/decode.
// Channel bindings and decoder options use "key=value,key=value" form,
// matching sigrok-cli's -P syntax.
type DecodeRequest struct {
	Decoder          string `json:"decoder"`
	ChannelBindings  string `json:"channel_bindings,omitempty"`
	DecoderOptions   string `json:"decoder_options,omitempty"`
	AnnotationFilter string `json:"annotation_filter,omitempty"`
	Detail           string `json:"detail,omitempty"`
}

func (r *DecodeRequest) toOptions() (sigrokla.DecodeOptions, error) {
	bindings, err := sigrokla.ParsePairs(r.ChannelBindings)
	if err != nil {
		return sigrokla.DecodeOptions{}, fmt.Errorf("channel_bindings: %w", err)
	}
	decOpts, err := sigrokla.ParsePairs(r.DecoderOptions)
	if err != nil {
		return sigrokla.DecodeOptions{}, fmt.Errorf("decoder_options: %w", err)
	}
	opts := sigrokla.DecodeOptions{
		Decoder:          r.Decoder,
		ChannelBindings:  bindings,
		DecoderOptions:   decOpts,
		AnnotationFilter: r.AnnotationFilter,
		Detail:           r.Detail,
	}
	if err := opts.Validate(); err != nil {
		return sigrokla.DecodeOptions{}, err
	}
	return opts, nil
}

// CaptureAndDecodeRequest is the request body for POST /api/captures/decode.
type CaptureAndDecodeRequest struct {
	Capture CaptureRequest `json:"capture"`
	Decode  DecodeRequest  `json:"decode"`
}

// TextResponse wraps a tool's rendered text output.
type TextResponse struct {
	Result string `json:"result"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StatusResponse is the response for GET /api/status.
type StatusResponse struct {
	Status      string `json:"status"`
	SessionID   string `json:"session_id"`
	CLIPath     string `json:"cli_path"`
	CatalogPath string `json:"catalog_path,omitempty"`
}
