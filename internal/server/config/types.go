// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for roomrelay-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Coord   CoordSection   `koanf:"coord"`
	Gateway GatewaySection `koanf:"gateway"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the process endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`

	// ShutdownTimeout bounds the whole graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is the per-IP request limit of the room API (requests/second).
	RateLimit int `koanf:"rate_limit"`

	// MaxPayloadBytes limits one published message.
	MaxPayloadBytes int `koanf:"max_payload_bytes"`
}

// CoordSection configures the coordination store shared by the fleet.
type CoordSection struct {
	// Backend is "redis" or "memory". The memory backend is process-local
	// and only suitable for a single instance.
	Backend string `koanf:"backend"`

	// URL is a redis:// or rediss:// URL.
	URL string `koanf:"url"`

	// KeyPrefix namespaces keys and channels so fleets can share a store.
	KeyPrefix string `koanf:"key_prefix"`

	OpTimeout time.Duration `koanf:"op_timeout"`
	TLSCAFile string        `koanf:"tls_ca_file"`

	// LeaveTimeout bounds the membership cleanup after a disconnect.
	LeaveTimeout time.Duration `koanf:"leave_timeout"`

	Embedded EmbeddedConfig `koanf:"embedded"`
}

// EmbeddedConfig configures the built-in coordination server that serves
// the memory backend over the Redis protocol.
type EmbeddedConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Addr        string `koanf:"addr"`
	Password    string `koanf:"password"`
	CommandRate int    `koanf:"command_rate"`
}

// GatewaySection configures the websocket gateway.
type GatewaySection struct {
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	MaxFrameBytes   int64         `koanf:"max_frame_bytes"`
	FramesPerSecond float64       `koanf:"frames_per_second"`
	FrameBurst      int           `koanf:"frame_burst"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	PingInterval    time.Duration `koanf:"ping_interval"`
	SendQueue       int           `koanf:"send_queue"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool `koanf:"enabled"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
