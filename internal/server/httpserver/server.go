package httpserver

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: handler,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// ServeTLS accepts TLS connections on ln. cfg usually carries a
// GetCertificate hook so certificates can rotate without a restart.
func (s *Server) ServeTLS(ln net.Listener, cfg *tls.Config) error {
	return s.httpServer.Serve(tls.NewListener(ln, cfg))
}

// Shutdown gracefully shuts down the server. Hijacked websocket connections
// are not covered; the gateway shuts those down itself.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
