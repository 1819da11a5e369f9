// Package coord defines the coordination store shared by every relay
// process in a fleet.
//
// The store holds three kinds of state:
//
//   - sets: the subscribed-groups set and one joined-groups set per connection
//   - a hash of per-group connection counters
//   - publish/subscribe channels, one per group
//
// Implementations:
//
//   - redisstore: a Redis client, used by production fleets
//   - memstore: an in-process store for single-node mode and tests
package coord

import "context"

// MessageHandler receives one message published on a subscribed channel.
// It is called from the subscription's Run goroutine and must not block.
type MessageHandler func(channel string, payload []byte)

// Store is the typed view of the shared coordination store.
//
// All operations are suspension points and honor ctx deadlines. Errors are
// transport or protocol failures; missing keys are not errors.
type Store interface {
	// SetAdd adds member to the set at key, reporting whether it was new.
	SetAdd(ctx context.Context, key, member string) (bool, error)

	// SetRemove removes member from the set at key, reporting whether it
	// was present.
	SetRemove(ctx context.Context, key, member string) (bool, error)

	// SetMembers returns every member of the set at key (empty if absent).
	SetMembers(ctx context.Context, key string) ([]string, error)

	// SetDelete removes the set at key.
	SetDelete(ctx context.Context, key string) error

	// CounterIncrement adds delta to field of the hash at key and returns
	// the new value. A missing field counts as zero.
	CounterIncrement(ctx context.Context, key, field string, delta int64) (int64, error)

	// CounterDelete removes field from the hash at key.
	CounterDelete(ctx context.Context, key, field string) error

	// CounterGet returns field of the hash at key, or zero when absent.
	CounterGet(ctx context.Context, key, field string) (int64, error)

	// Publish sends payload on channel and returns how many subscribers
	// received it.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)

	// NewSubscription opens a subscription handle. Messages for every
	// channel later subscribed through the handle go to handler.
	NewSubscription(ctx context.Context, handler MessageHandler) (Subscription, error)

	// Close releases the store's resources.
	Close() error
}

// Subscription is one process-wide subscription handle.
type Subscription interface {
	// Subscribe adds channel to the handle. It returns once the store has
	// confirmed the subscription is active.
	Subscribe(ctx context.Context, channel string) error

	// Unsubscribe removes channel from the handle once confirmed.
	Unsubscribe(ctx context.Context, channel string) error

	// Run delivers messages to the handler until ctx is done or the handle
	// is closed.
	Run(ctx context.Context) error

	// Close releases the handle. Pending Subscribe/Unsubscribe calls fail.
	Close() error
}
