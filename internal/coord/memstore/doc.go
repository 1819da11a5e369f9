// Package memstore implements coord.Store in process memory.
//
// A single Store models the shared store of a whole fleet: tests hand one
// Store to several trackers to stand in for several relay processes, and the
// embedded coordination server exposes one Store over RESP so separate
// processes can share it.
//
// Sets and hashes live in sharded maps. Publish/subscribe keeps a
// channel -> subscriber index; each subscriber has a bounded queue and
// messages that do not fit are dropped, matching the relay's best-effort
// delivery.
package memstore
