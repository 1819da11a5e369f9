// Package httpserver provides the HTTP server of a relay process.
//
// Routes:
//
//   - GET /health, GET /ready: liveness and coordination store readiness
//   - GET /metrics: Prometheus metrics
//   - POST /rooms/{room}/messages: publish a message to a room
//   - GET /rooms/{room}: fleet-wide connection count of a room
//   - GET /ws: the websocket gateway
//
// Requests pass through Recover, RequestID, CORS, RateLimit and Audit
// middleware. The gateway skips Audit and RateLimit since it has its own
// per-connection limits.
package httpserver
