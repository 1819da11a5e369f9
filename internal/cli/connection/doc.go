// Package connection is the roomrelay HTTP API client used by the CLI.
//
// Responses arrive in the standard envelope ({code, message, request_id,
// timestamp, data}); failures are returned as *APIError so callers can
// inspect the error code.
package connection
