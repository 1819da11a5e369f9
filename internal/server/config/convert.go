// Package config defines the server configuration structure.
package config

import (
	"github.com/yndnr/roomrelay/internal/coord/redisstore"
	"github.com/yndnr/roomrelay/internal/server/coordserver"
	"github.com/yndnr/roomrelay/internal/server/gateway"
	"github.com/yndnr/roomrelay/internal/telemetry/logger"
)

// ToGatewayConfig converts the gateway section. Zero values keep the
// gateway defaults.
func ToGatewayConfig(cfg *ServerConfig) gateway.Config {
	out := gateway.DefaultConfig()
	g := cfg.Gateway

	if g.AllowedOrigins != nil {
		out.AllowedOrigins = g.AllowedOrigins
	}
	if g.MaxFrameBytes > 0 {
		out.MaxFrameBytes = g.MaxFrameBytes
	}
	if g.FramesPerSecond > 0 {
		out.FramesPerSecond = g.FramesPerSecond
	}
	if g.FrameBurst > 0 {
		out.FrameBurst = g.FrameBurst
	}
	if g.WriteTimeout > 0 {
		out.WriteTimeout = g.WriteTimeout
	}
	if g.PingInterval > 0 {
		out.PingInterval = g.PingInterval
	}
	if g.SendQueue > 0 {
		out.SendQueue = g.SendQueue
	}
	if cfg.Coord.LeaveTimeout > 0 {
		out.LeaveTimeout = cfg.Coord.LeaveTimeout
	}
	return out
}

// ToRedisStoreConfig converts the coord section for the redis backend.
func ToRedisStoreConfig(cfg *ServerConfig) redisstore.Config {
	return redisstore.Config{
		URL:       cfg.Coord.URL,
		OpTimeout: cfg.Coord.OpTimeout,
		CAFile:    cfg.Coord.TLSCAFile,
	}
}

// ToCoordServerConfig converts the embedded coordination server settings.
func ToCoordServerConfig(cfg *ServerConfig) *coordserver.Config {
	out := coordserver.DefaultConfig()
	e := cfg.Coord.Embedded
	if e.Addr != "" {
		out.Address = e.Addr
	}
	out.Password = e.Password
	out.CommandRate = e.CommandRate
	return out
}

// ToLoggerConfig converts the log section.
func ToLoggerConfig(cfg *ServerConfig) logger.Config {
	out := logger.DefaultConfig()
	if cfg.Log.Level != "" {
		out.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		out.Format = cfg.Log.Format
	}
	return out
}
