// Package domain defines the core domain types for roomrelay.
//
// Domain types are pure values without IO dependencies. This package contains:
//
//   - Connection IDs: ULID-based identifiers minted per accepted connection
//   - Groups: room name validation shared by the gateway and the HTTP surface
//   - Errors: structured error codes used across the relay
package domain
