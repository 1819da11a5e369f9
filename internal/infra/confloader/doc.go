// Package confloader layers struct defaults, a YAML file and environment
// variables into one koanf tree and decodes it into a config struct.
//
// Priority (highest to lowest):
//
//  1. Environment aliases (bare legacy variable names)
//  2. Prefixed environment variables (ROOMRELAY_*)
//  3. Configuration file (YAML)
//  4. Defaults taken from the target struct
//
// Watcher reports bursts of changes to watched files. The server uses it to
// apply a new log level without a restart, and tlsroots uses it to reload
// the HTTP certificate pair.
package confloader
