// Package handler provides the HTTP request handlers for the relay.
//
// Every JSON response uses the Response envelope. /metrics is served by the
// Prometheus handler and the websocket gateway is mounted by the router.
package handler
