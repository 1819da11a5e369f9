// Package tlsroots provides TLS material for roomrelay.
//
//   - roots.go: client trust for rediss:// store connections and the CLI
//     (system roots plus an optional CA bundle)
//   - watcher.go: serving certificate for the HTTP listener, reloaded when
//     the files change
package tlsroots
