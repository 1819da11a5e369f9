package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/coord/memstore"
	"github.com/yndnr/roomrelay/internal/coord/redisstore"
	"github.com/yndnr/roomrelay/internal/fanout"
	"github.com/yndnr/roomrelay/internal/infra/confloader"
	"github.com/yndnr/roomrelay/internal/infra/shutdown"
	"github.com/yndnr/roomrelay/internal/infra/tlsroots"
	"github.com/yndnr/roomrelay/internal/membership"
	"github.com/yndnr/roomrelay/internal/relay"
	"github.com/yndnr/roomrelay/internal/server/config"
	"github.com/yndnr/roomrelay/internal/server/coordserver"
	"github.com/yndnr/roomrelay/internal/server/gateway"
	"github.com/yndnr/roomrelay/internal/server/httpserver"
	"github.com/yndnr/roomrelay/internal/telemetry/logger"
	"github.com/yndnr/roomrelay/internal/telemetry/metric"
)

// pinger is implemented by both store backends.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server is one running relay process.
type Server struct {
	cfg      *config.ServerConfig
	log      *slog.Logger
	shutdown *shutdown.Handler

	ln       net.Listener
	coordSrv *coordserver.Server
}

// StartServer wires the components described by cfg and starts serving.
// Shutdown hooks run in reverse registration order, so the HTTP server
// stops first and the coordination store last.
func StartServer(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		log:      log,
		shutdown: shutdown.NewHandler(cfg.Server.ShutdownTimeout, shutdown.WithLogger(log)),
	}
	started := false
	defer func() {
		if !started {
			s.shutdown.Trigger()
			_ = s.shutdown.Wait(context.Background())
		}
	}()

	var metrics *metric.Registry
	if cfg.Metrics.Enabled {
		metrics = metric.NewRegistry()
	}

	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}
	keys := coord.NewKeys(cfg.Coord.KeyPrefix)

	sink := fanout.New(
		fanout.WithLogger(log.With("component", "fanout")),
		fanout.WithMetrics(metrics),
	)

	// The multiplexer outlives the caller's context until its hook runs.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	mux, err := relay.New(runCtx, store, sink,
		relay.WithKeys(keys),
		relay.WithLogger(log.With("component", "relay")),
		relay.WithMetrics(metrics),
	)
	if err != nil {
		cancelRun()
		return nil, fmt.Errorf("open relay subscription: %w", err)
	}
	go func() {
		if err := mux.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay stopped", "error", err)
			s.shutdown.Trigger()
		}
	}()
	s.shutdown.OnShutdown("relay", func(context.Context) error {
		defer cancelRun()
		return mux.Close()
	})

	tracker := membership.New(store, mux, sink,
		membership.WithKeys(keys),
		membership.WithLogger(log.With("component", "membership")),
		membership.WithMetrics(metrics),
	)
	publisher := relay.NewPublisher(store, keys, cfg.Server.HTTP.MaxPayloadBytes, metrics)

	gw := gateway.New(config.ToGatewayConfig(cfg), tracker, sink,
		gateway.WithLogger(log.With("component", "gateway")),
		gateway.WithMetrics(metrics),
	)
	s.shutdown.OnShutdown("gateway", gw.Shutdown)

	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Publisher = publisher
	routerCfg.Counter = tracker
	routerCfg.Gateway = gw
	routerCfg.Logger = log.With("component", "http")
	routerCfg.CORSAllowedOrigins = cfg.Gateway.AllowedOrigins
	routerCfg.GlobalRateLimit = cfg.Server.HTTP.RateLimit
	if p, ok := store.(pinger); ok {
		routerCfg.Readiness = p
	}
	if metrics != nil {
		routerCfg.Metrics = metrics.Handler()
	}

	if err := s.serveHTTP(httpserver.NewRouter(routerCfg)); err != nil {
		return nil, err
	}

	started = true
	return s, nil
}

// openStore opens the configured backend and registers its shutdown hook.
// With the memory backend the embedded coordination server may expose the
// store to other processes over the Redis protocol.
func (s *Server) openStore(ctx context.Context) (coord.Store, error) {
	switch s.cfg.Coord.Backend {
	case config.BackendMemory:
		mem := memstore.New()
		s.shutdown.OnShutdown("store", func(context.Context) error {
			return mem.Close()
		})

		if s.cfg.Coord.Embedded.Enabled {
			s.coordSrv = coordserver.New(config.ToCoordServerConfig(s.cfg), mem,
				s.log.With("component", "coordserver"))
			if err := s.coordSrv.Start(ctx); err != nil {
				return nil, fmt.Errorf("start coordination server: %w", err)
			}
			s.shutdown.OnShutdown("coordserver", s.coordSrv.Shutdown)
		}
		return mem, nil

	default:
		rs, err := redisstore.New(ctx, config.ToRedisStoreConfig(s.cfg),
			redisstore.WithLogger(s.log.With("component", "redisstore")))
		if err != nil {
			return nil, err
		}
		s.shutdown.OnShutdown("store", func(context.Context) error {
			return rs.Close()
		})
		return rs, nil
	}
}

// serveHTTP binds the HTTP listener and serves in the background, over TLS
// with hot-reloaded certificates when a pair is configured.
func (s *Server) serveHTTP(handler http.Handler) error {
	httpCfg := s.cfg.Server.HTTP

	var certs *tlsroots.Watcher
	if httpCfg.TLSCertFile != "" {
		var err error
		certs, err = tlsroots.NewWatcher(httpCfg.TLSCertFile, httpCfg.TLSKeyFile,
			tlsroots.WithLogger(s.log.With("component", "tls")))
		if err != nil {
			return fmt.Errorf("load tls certificate: %w", err)
		}
		if err := certs.Start(); err != nil {
			s.log.Warn("certificate reload disabled", "error", err)
		}
		s.shutdown.OnShutdown("tls-watcher", func(context.Context) error {
			certs.Stop()
			return nil
		})
	}

	ln, err := net.Listen("tcp", httpCfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpCfg.Addr, err)
	}
	s.ln = ln

	srv := httpserver.New(httpCfg.Addr, handler)
	go func() {
		var err error
		if certs != nil {
			err = srv.ServeTLS(ln, certs.ServerConfig())
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", "error", err)
			s.shutdown.Trigger()
		}
	}()
	s.shutdown.OnShutdown("http", srv.Shutdown)

	s.log.Info("http server listening",
		"address", ln.Addr().String(),
		"tls", certs != nil,
	)
	return nil
}

// WatchConfig applies log level changes from path without a restart.
// Other settings need a restart.
func (s *Server) WatchConfig(path string) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(s.log))
	if err != nil {
		s.log.Warn("config watch disabled", "error", err)
		return
	}
	if err := w.Watch(path); err != nil {
		s.log.Warn("config watch disabled", "path", path, "error", err)
		_ = w.Stop()
		return
	}

	w.OnChange(func([]string) {
		cfg, err := loadConfig(path)
		if err != nil {
			s.log.Warn("config reload rejected", "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			s.log.Warn("log level not applied", "level", cfg.Log.Level, "error", err)
			return
		}
		s.log.Info("config reloaded", "log_level", cfg.Log.Level)
	})
	w.StartAsync()

	s.shutdown.OnShutdown("config-watcher", func(context.Context) error {
		return w.Stop()
	})
}

// Addr returns the bound HTTP address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// CoordAddr returns the embedded coordination server address, or nil when
// it is not running.
func (s *Server) CoordAddr() net.Addr {
	if s.coordSrv == nil {
		return nil
	}
	return s.coordSrv.Addr()
}

// Stop starts shutdown; Wait performs it.
func (s *Server) Stop() {
	s.shutdown.Trigger()
}

// Wait blocks until a signal, Stop or cancellation of ctx, then shuts the
// process down.
func (s *Server) Wait(ctx context.Context) error {
	return s.shutdown.Wait(ctx)
}
