// Package redisstore implements coord.Store on Redis with go-redis.
//
// Commands go through a pooled client. The subscription handle wraps a
// single redis.PubSub connection; Subscribe and Unsubscribe block until
// Redis sends the matching confirmation, which the handle's Run loop reads
// and hands back to the waiting caller. Run must therefore be running for
// Subscribe to return.
package redisstore
