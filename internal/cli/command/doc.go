// Package command defines the roomrelay command line using urfave/cli/v2.
//
//   - serve: run a relay process (HTTP API, websocket gateway, relay)
//   - publish, room, health: call a running relay over its HTTP API
//   - config: validate and print the effective server configuration
//   - version: print build information
package command
