package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/wannessels/sigrok-logicanalyzer-mcp/pkg/logger"
)

// setupRoutes registers all HTTP routes and middleware
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)

	mux.HandleFunc("/api/captures", s.handleCaptures)
	mux.HandleFunc("/api/captures/decode", s.handleCaptureAndDecode)
	mux.HandleFunc("/api/captures/", s.handleCapture)

	mux.HandleFunc("/api/decoders", s.handleListDecoders)
	mux.HandleFunc("/api/devices", s.handleScanDevices)

	return corsMiddleware(s.config.AllowedOrigins)(loggingMiddleware(mux))
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Infof("%s %s from %s -> %d", r.Method, r.URL.Path, getClientIP(r), wrapped.statusCode)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	handler := s.setupRoutes()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Infof("Logic analyzer server starting on %s", addr)
	s.log.Infof("   sigrok-cli: %s", s.config.CLIPath)
	if s.config.CatalogPath != "" {
		s.log.Infof("   Catalog: %s", s.config.CatalogPath)
	}
	s.log.Infof("Endpoints:")
	s.log.Infof("   GET    /health                        - Health check")
	s.log.Infof("   GET    /api/status                    - Session status")
	s.log.Infof("   GET    /api/captures                  - List captures")
	s.log.Infof("   POST   /api/captures                  - Acquire samples")
	s.log.Infof("   POST   /api/captures/decode           - Acquire and decode")
	s.log.Infof("   POST   /api/captures/{id}/decode      - Decode a capture")
	s.log.Infof("   GET    /api/captures/{id}/samples     - Raw sample window")
	s.log.Infof("   GET    /api/captures/{id}/analyze     - Channel activity summary")
	s.log.Infof("   GET    /api/decoders                  - List protocol decoders")
	s.log.Infof("   GET    /api/devices                   - Scan for devices")

	return http.ListenAndServe(addr, handler)
}
