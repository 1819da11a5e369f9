// Package config defines the server configuration structure.
package config

import (
	"slices"
	"strings"

	"github.com/knadh/koanf/providers/structs"

	"github.com/yndnr/roomrelay/internal/telemetry/logger"
)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Gateway.AllowedOrigins = slices.Clone(cfg.Gateway.AllowedOrigins)

	sanitized.Coord.URL = logger.RedactURL(cfg.Coord.URL)
	if sanitized.Coord.Embedded.Password != "" {
		sanitized.Coord.Embedded.Password = maskSecret(sanitized.Coord.Embedded.Password)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// ToMap returns the config as nested maps keyed like the YAML file.
// Callers that print it should pass a sanitized copy.
func ToMap(cfg *ServerConfig) map[string]any {
	m, _ := structs.Provider(cfg, "koanf").Read()
	return m
}
