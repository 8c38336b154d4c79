package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/logger"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/capture"
	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/sigrokla/decode"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service sigrokla.Service
	config  *ServerConfig
	log     sigrokla.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	StoreDir       string
	CatalogPath    string
	CLIPath        string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service sigrokla.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondServiceError maps service errors onto HTTP status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	var procErr *decode.ProcessError
	switch {
	case errors.Is(err, capture.ErrCaptureNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrInvalidChannelCount),
		errors.Is(err, decode.ErrChannelMappingMismatch):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, decode.ErrBackendUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, decode.ErrDecodeTimeout):
		s.respondError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &procErr):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "sigrok logic analyzer API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":           "GET /health",
			"status":           "GET /api/status",
			"listCaptures":     "GET /api/captures",
			"capture":          "POST /api/captures",
			"captureAndDecode": "POST /api/captures/decode",
			"decode":           "POST /api/captures/{id}/decode",
			"rawSamples":       "GET /api/captures/{id}/samples",
			"analyze":          "GET /api/captures/{id}/analyze",
			"listDecoders":     "GET /api/decoders",
			"scanDevices":      "GET /api/devices",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, StatusResponse{
		Status:      "healthy",
		SessionID:   s.service.SessionID(),
		CLIPath:     s.config.CLIPath,
		CatalogPath: s.config.CatalogPath,
	})
}

// handleCaptures handles GET and POST /api/captures
func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out, err := s.service.ListCaptures(r.Context())
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, TextResponse{Result: out})
	case http.MethodPost:
		var req CaptureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		out, err := s.service.Capture(r.Context(), req.toOptions())
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, TextResponse{Result: out})
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleCaptureAndDecode handles POST /api/captures/decode
func (s *Server) handleCaptureAndDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req CaptureAndDecodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if err := req.Capture.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	decOpts, err := req.Decode.toOptions()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.service.CaptureAndDecode(r.Context(), req.Capture.toOptions(), decOpts)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, TextResponse{Result: out})
}

// handleCapture routes /api/captures/{id}/... sub-resources
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/captures/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Capture ID is required")
		return
	}

	switch action {
	case "decode":
		s.handleDecode(w, r, id)
	case "samples":
		s.handleRawSamples(w, r, id)
	case "analyze":
		s.handleAnalyze(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

// handleDecode handles POST /api/captures/{id}/decode
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req DecodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	opts, err := req.toOptions()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.service.DecodeProtocol(r.Context(), id, opts)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, TextResponse{Result: out})
}

// handleRawSamples handles GET /api/captures/{id}/samples
func (s *Server) handleRawSamples(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	start, err := queryInt(q.Get("start"), 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid start: "+err.Error())
		return
	}
	count, err := queryInt(q.Get("count"), 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid count: "+err.Error())
		return
	}
	channels, err := sigrokla.ParseChannelList(q.Get("channels"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := sigrokla.RawSampleOptions{
		Format:   q.Get("format"),
		Start:    start,
		Count:    count,
		Channels: channels,
	}
	if err := opts.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.service.GetRawSamples(r.Context(), id, opts)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, TextResponse{Result: out})
}

// handleAnalyze handles GET /api/captures/{id}/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	out, err := s.service.AnalyzeCapture(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, TextResponse{Result: out})
}

// handleListDecoders handles GET /api/decoders
func (s *Server) handleListDecoders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	out, err := s.service.ListDecoders(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, TextResponse{Result: out})
}

// handleScanDevices handles GET /api/devices
func (s *Server) handleScanDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	out, err := s.service.ScanDevices(r.Context(), r.URL.Query().Get("driver"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, TextResponse{Result: out})
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
