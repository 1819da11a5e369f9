// Package coordserver serves a memstore.Store over the Redis protocol.
//
// It lets a development fleet share coordination state without an external
// Redis: one process enables the embedded server and the others point
// coord.url at it. Only the RESP2 commands the relay issues are implemented:
//
//	PING QUIT AUTH HELLO CLIENT SELECT
//	SADD SREM SMEMBERS SISMEMBER DEL
//	HINCRBY HGET HDEL
//	PUBLISH SUBSCRIBE UNSUBSCRIBE
//
// HELLO always fails so clients fall back to RESP2. A connection that has
// subscribed to at least one channel enters subscribe mode and only accepts
// SUBSCRIBE, UNSUBSCRIBE, PING and QUIT, as in Redis.
package coordserver
