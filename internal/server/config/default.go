// Package config defines the server configuration structure.
package config

import "time"

// Backend names.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRateLimit       = 100
	DefaultMaxPayloadBytes = 64 * 1024

	DefaultCoordURL     = "redis://localhost:6379"
	DefaultOpTimeout    = 5 * time.Second
	DefaultLeaveTimeout = 10 * time.Second
	DefaultEmbeddedAddr = "127.0.0.1:6380"

	DefaultAllowedOrigin   = "http://localhost:3000"
	DefaultMaxFrameBytes   = 16 * 1024
	DefaultFramesPerSecond = 40
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPingInterval    = 25 * time.Second
	DefaultSendQueue       = 64

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				RateLimit:       DefaultRateLimit,
				MaxPayloadBytes: DefaultMaxPayloadBytes,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Coord: CoordSection{
			Backend:      BackendRedis,
			URL:          DefaultCoordURL,
			OpTimeout:    DefaultOpTimeout,
			LeaveTimeout: DefaultLeaveTimeout,
			Embedded: EmbeddedConfig{
				Addr: DefaultEmbeddedAddr,
			},
		},
		Gateway: GatewaySection{
			AllowedOrigins:  []string{DefaultAllowedOrigin},
			MaxFrameBytes:   DefaultMaxFrameBytes,
			FramesPerSecond: DefaultFramesPerSecond,
			FrameBurst:      DefaultFramesPerSecond,
			WriteTimeout:    DefaultWriteTimeout,
			PingInterval:    DefaultPingInterval,
			SendQueue:       DefaultSendQueue,
		},
		Metrics: MetricsSection{
			Enabled: true,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
