// Package config defines the server configuration structure.
package config

import (
	"strings"

	"github.com/yndnr/roomrelay/internal/infra/confloader"
)

// LegacyEnvAliases maps the bare variables of earlier deployments onto
// configuration keys. They take precedence over ROOMRELAY_ variables.
func LegacyEnvAliases() []confloader.EnvAlias {
	return []confloader.EnvAlias{
		{Name: "REDIS_CONNECTION_STRING", Key: "coord.url"},
		{Name: "PORT", Key: "server.http.addr", Transform: portToAddr},
		{Name: "CORS_ORIGIN", Key: "gateway.allowed_origins", Transform: func(v string) any {
			return confloader.SplitList(v)
		}},
	}
}

// portToAddr accepts a bare port ("8080") or a full address.
func portToAddr(v string) any {
	v = strings.TrimSpace(v)
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

// Load builds the configuration from defaults, the optional YAML file at
// path and the environment.
func Load(path string) (*ServerConfig, error) {
	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithEnvAliases(LegacyEnvAliases()...),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
