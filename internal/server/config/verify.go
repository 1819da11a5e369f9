// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"

	"github.com/yndnr/roomrelay/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyCoord(&cfg.Coord),
		verifyGateway(&cfg.Gateway),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error
	if err := verifyAddr("server.http.addr", cfg.HTTP.Addr); err != nil {
		errs = append(errs, err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and server.http.tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if err := verifyFile(f); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if cfg.HTTP.MaxPayloadBytes <= 0 {
		errs = append(errs, errors.New("server.http.max_payload_bytes must be positive"))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func verifyCoord(cfg *CoordSection) error {
	var errs []error
	switch cfg.Backend {
	case BackendRedis:
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") || u.Host == "" {
			errs = append(errs, fmt.Errorf("coord.url %q must be a redis:// or rediss:// URL", logger.RedactURL(cfg.URL)))
		}
		if err := verifyFile(cfg.TLSCAFile); err != nil {
			errs = append(errs, err)
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("coord.backend %q must be %q or %q", cfg.Backend, BackendRedis, BackendMemory))
	}

	if cfg.Embedded.Enabled {
		if cfg.Backend != BackendMemory {
			errs = append(errs, errors.New("coord.embedded requires coord.backend memory"))
		}
		if err := verifyAddr("coord.embedded.addr", cfg.Embedded.Addr); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.OpTimeout <= 0 {
		errs = append(errs, errors.New("coord.op_timeout must be positive"))
	}
	if cfg.LeaveTimeout <= 0 {
		errs = append(errs, errors.New("coord.leave_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func verifyGateway(cfg *GatewaySection) error {
	var errs []error
	if cfg.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("gateway.max_frame_bytes must be positive"))
	}
	if cfg.FramesPerSecond <= 0 {
		errs = append(errs, errors.New("gateway.frames_per_second must be positive"))
	}
	if cfg.WriteTimeout <= 0 || cfg.PingInterval <= 0 {
		errs = append(errs, errors.New("gateway.write_timeout and gateway.ping_interval must be positive"))
	}
	if cfg.SendQueue <= 0 {
		errs = append(errs, errors.New("gateway.send_queue must be positive"))
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		return fmt.Errorf("log.format %q must be json or text", cfg.Format)
	}
	return nil
}

func verifyAddr(key, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s %q: %w", key, addr, err)
	}
	return nil
}

func verifyFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	return nil
}
