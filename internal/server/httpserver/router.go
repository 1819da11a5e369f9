package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/roomrelay/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Publisher sends room messages.
	Publisher handler.Publisher

	// Counter reports room membership.
	Counter handler.Counter

	// Readiness is pinged by /ready (optional).
	Readiness handler.Checker

	// Gateway serves /ws (optional).
	Gateway http.Handler

	// Metrics serves /metrics (optional).
	Metrics http.Handler

	// Logger for request logging.
	Logger *slog.Logger

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string

	// GlobalRateLimit is the rate limit per client IP for the room API
	// (requests/second, 0 disables).
	GlobalRateLimit int

	// EnableAudit enables audit logging for API requests.
	EnableAudit bool
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := handler.New(cfg.Publisher, cfg.Counter, cfg.Readiness, logger)

	mux := http.NewServeMux()

	// Health endpoints
	probe := Chain(h, Recover(logger), RequestID())
	mux.Handle("GET /health", probe)
	mux.Handle("GET /ready", probe)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics, Recover(logger), RequestID()))
	}

	// Room API
	// Order: Recover -> RequestID -> CORS -> RateLimit -> Audit -> Handler
	api := []Middleware{Recover(logger), RequestID(), CORS(cfg.CORSAllowedOrigins)}
	if cfg.GlobalRateLimit > 0 {
		api = append(api, RateLimit(cfg.GlobalRateLimit))
	}
	if cfg.EnableAudit {
		api = append(api, Audit(logger))
	}
	roomHandler := Chain(h, api...)
	mux.Handle("GET /rooms/{room}", roomHandler)
	mux.Handle("POST /rooms/{room}/messages", roomHandler)
	mux.Handle("OPTIONS /rooms/", roomHandler)

	if cfg.Gateway != nil {
		mux.Handle("GET /ws", Chain(cfg.Gateway, Recover(logger), RequestID()))
	}

	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		GlobalRateLimit: 100, // 100 requests/second per IP
		EnableAudit:     true,
	}
}
