// Package config provides server configuration for roomrelay.
//
// This package defines the server configuration structure and validation:
//
//   - types.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - legacy.go: Environment names of earlier deployments and Load
//   - verify.go: Validation (addresses, backend choice, file existence)
//   - sanitize.go: Masking of credentials and export as nested maps
//   - convert.go: Mapping onto component configurations
//
// Configuration is loaded via internal/infra/confloader.
package config
