// Package logger provides structured logging for roomrelay.
//
// It wraps log/slog:
//
//   - logger.go: Logger interface, configuration, global level
//   - context.go: request and connection ids carried in context
//   - redact.go: masking of secrets and store URL credentials
//
// Servers take a *slog.Logger (see Slog); application code may use the
// Logger interface or the package-level helpers. The level is held in a
// shared slog.LevelVar so a config reload can change it at runtime.
package logger
