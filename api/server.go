// Package api - Thin HTTP layer over the pricing engine
// The API is ONLY responsible for: input ingestion, engine orchestration, output serialization.
// The API NEVER performs pricing logic.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pool-boq/api/envelope"
	"pool-boq/core/engine"
	"pool-boq/core/output"
	"pool-boq/internal/errors"
	"pool-boq/internal/logging"
)

// maxBodyBytes bounds request bodies; a full template bundle is well below it
const maxBodyBytes = 1 << 20

// Server is the API server
type Server struct {
	engine     *engine.Engine
	normalizer *envelope.Normalizer
	audit      envelope.AuditLogger
	formatters *output.Registry
	mux        *http.ServeMux
	handler    http.Handler
	origins    []string
	version    string
	logger     *zap.Logger
}

// Options configures a Server
type Options struct {
	Version string

	// Logger is optional
	Logger *zap.Logger

	// Metrics is served on GET /metrics when set
	Metrics http.Handler

	// Audit receives one entry per quote; defaults to the logger
	Audit envelope.AuditLogger

	// AllowedOrigins enables CORS for these origins; "*" allows any
	AllowedOrigins []string
}

// NewServer creates an API server over e
func NewServer(e *engine.Engine, opts Options) *Server {
	logger := logging.OrNop(opts.Logger).Named("api")
	audit := opts.Audit
	if audit == nil {
		audit = envelope.NewZapAuditLogger(logger)
	}

	s := &Server{
		engine:     e,
		normalizer: envelope.NewNormalizer(e.Settings()),
		audit:      audit,
		formatters: output.NewRegistry(),
		mux:        http.NewServeMux(),
		origins:    opts.AllowedOrigins,
		version:    opts.Version,
		logger:     logger,
	}

	s.registerRoutes(opts.Metrics)
	handler := s.withCORS(s.mux)
	handler = s.withRecovery(handler)
	handler = s.withLogging(handler)
	s.handler = s.withRequestID(handler)
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes(metrics http.Handler) {
	// Core endpoints
	s.mux.HandleFunc("POST /v1/quote", s.handleQuote)
	s.mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	s.mux.HandleFunc("POST /v1/validate", s.handleValidate)
	s.mux.HandleFunc("POST /v1/compare", s.handleCompare)
	s.mux.HandleFunc("GET /v1/templates/{shape}", s.handleTemplate)
	s.mux.HandleFunc("GET /v1/shapes", s.handleShapes)

	// Supporting endpoints
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version":     s.version,
		"engine":      "pool-boq",
		"api_version": "v1",
	}, http.StatusOK)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	s.writeJSON(w, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	}}, status)
}

// writeFailure maps a typed error onto a status code
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	t := errors.TypeOf(err)
	status := statusFor(t)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	s.writeError(w, r, string(t), err.Error(), status)
}

func statusFor(t errors.Type) int {
	switch t {
	case errors.TypeInput:
		return http.StatusBadRequest
	case errors.TypeNotFound:
		return http.StatusNotFound
	case errors.TypeValidation, errors.TypeFormula:
		return http.StatusUnprocessableEntity
	case errors.TypeStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v, reporting bad bodies as 400
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.writeError(w, r, "INVALID_JSON", err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer returns an http.Server for addr; the caller owns its lifecycle
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// Middleware

type requestIDKey struct{}

// RequestID returns the request ID stored by the server, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID honours an incoming X-Request-ID or generates one
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.origins) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		for _, allowed := range s.origins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.Header().Add("Vary", "Origin")
				break
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic in handler",
					zap.Any("panic", v),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestID(r.Context())),
				)
				s.writeError(w, r, string(errors.TypeInternal), "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func generateRequestID() string {
	return "req-" + uuid.NewString()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
