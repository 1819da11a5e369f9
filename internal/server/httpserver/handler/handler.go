package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/internal/telemetry/logger"
)

// Publisher sends messages to rooms.
type Publisher interface {
	Publish(ctx context.Context, room string, payload []byte) (int64, error)
	MaxPayload() int
}

// Counter reports fleet-wide room membership.
type Counter interface {
	Count(ctx context.Context, room string) (int64, error)
}

// Checker reports readiness of a dependency.
type Checker interface {
	Ping(ctx context.Context) error
}

// Handler serves the relay's HTTP API.
type Handler struct {
	pub    Publisher
	count  Counter
	ready  Checker
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler. ready may be nil, in which case /ready only
// reports the process as up.
func New(pub Publisher, count Counter, ready Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		pub:    pub,
		count:  count,
		ready:  ready,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /rooms/{room}", h.handleGetRoom)
	h.mux.HandleFunc("POST /rooms/{room}/messages", h.handlePublish)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewErrorResponse(requestID, code, message)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// handleServiceError converts service errors to HTTP responses. Causes are
// logged, never returned to the caller.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if de, ok := domain.AsError(err); ok {
		status := ErrorCodeToHTTPStatus(de.Code)
		if status >= http.StatusInternalServerError {
			logger.L(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		}
		h.writeError(w, r, status, de.Code, de.Public())
		return
	}

	logger.L(r.Context()).Error("internal error", "path", r.URL.Path, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message)
}

// ErrorCodeToHTTPStatus maps error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4002"):
		return http.StatusRequestEntityTooLarge
	case strings.HasPrefix(code, "RR-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
