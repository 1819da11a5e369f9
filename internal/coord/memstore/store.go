package memstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yndnr/roomrelay/internal/coord"
	"github.com/yndnr/roomrelay/internal/core/domain"
	"github.com/yndnr/roomrelay/pkg/cmap"
)

// DefaultQueueSize is the per-subscription message buffer.
const DefaultQueueSize = 1024

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = domain.ErrStoreUnavailable.WithDetails("memory store closed")

	// ErrWrongType is returned when a set operation targets a hash key or
	// the other way round.
	ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	// ErrOverflow is returned when an increment would leave the int64 range.
	// The field keeps its value.
	ErrOverflow = errors.New("ERR increment or decrement would overflow")
)

// Store is an in-memory coordination store.
type Store struct {
	sets   *cmap.Map[map[string]struct{}]
	hashes *cmap.Map[map[string]int64]

	// Pub/sub index: channel -> subscribers
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}

	queueSize int
	closed    atomic.Bool
}

var _ coord.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithQueueSize sets the per-subscription message buffer.
func WithQueueSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		sets:        cmap.New[map[string]struct{}](),
		hashes:      cmap.New[map[string]int64](),
		subscribers: make(map[string]map[*Subscription]struct{}),
		queueSize:   DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping reports whether the store is open.
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx)
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// ============================================================================
// Sets
// ============================================================================

// SetAdd adds member to the set at key.
func (s *Store) SetAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := s.SetAddMany(ctx, key, member)
	return n == 1, err
}

// SetAddMany adds members to the set at key and returns how many were new.
func (s *Store) SetAddMany(ctx context.Context, key string, members ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if s.hashes.Contains(key) {
		return 0, ErrWrongType
	}

	var added int64
	s.sets.Update(key, func(set map[string]struct{}, exists bool) (map[string]struct{}, bool) {
		if !exists {
			set = make(map[string]struct{}, len(members))
		}
		for _, m := range members {
			if _, ok := set[m]; !ok {
				set[m] = struct{}{}
				added++
			}
		}
		return set, len(set) > 0
	})
	return added, nil
}

// SetRemove removes member from the set at key.
func (s *Store) SetRemove(ctx context.Context, key, member string) (bool, error) {
	n, err := s.SetRemoveMany(ctx, key, member)
	return n == 1, err
}

// SetRemoveMany removes members from the set at key and returns how many
// were present. The key disappears with its last member.
func (s *Store) SetRemoveMany(ctx context.Context, key string, members ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if s.hashes.Contains(key) {
		return 0, ErrWrongType
	}

	var removed int64
	s.sets.Update(key, func(set map[string]struct{}, exists bool) (map[string]struct{}, bool) {
		if !exists {
			return nil, false
		}
		for _, m := range members {
			if _, ok := set[m]; ok {
				delete(set, m)
				removed++
			}
		}
		return set, len(set) > 0
	})
	return removed, nil
}

// SetMembers returns the members of the set at key in sorted order.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if s.hashes.Contains(key) {
		return nil, ErrWrongType
	}

	var members []string
	s.sets.Peek(key, func(set map[string]struct{}, _ bool) {
		members = make([]string, 0, len(set))
		for m := range set {
			members = append(members, m)
		}
	})
	sort.Strings(members)
	return members, nil
}

// SetContains reports whether member is in the set at key.
func (s *Store) SetContains(ctx context.Context, key, member string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if s.hashes.Contains(key) {
		return false, ErrWrongType
	}

	var found bool
	s.sets.Peek(key, func(set map[string]struct{}, _ bool) {
		_, found = set[member]
	})
	return found, nil
}

// SetDelete removes the set at key.
func (s *Store) SetDelete(ctx context.Context, key string) error {
	_, err := s.Delete(ctx, key)
	return err
}

// Delete removes the given keys of any type and returns how many existed.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var n int64
	for _, key := range keys {
		if _, ok := s.sets.LoadAndDelete(key); ok {
			n++
			continue
		}
		if _, ok := s.hashes.LoadAndDelete(key); ok {
			n++
		}
	}
	return n, nil
}

// ============================================================================
// Counters (hash fields)
// ============================================================================

// CounterIncrement adds delta to field of the hash at key.
func (s *Store) CounterIncrement(ctx context.Context, key, field string, delta int64) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if s.sets.Contains(key) {
		return 0, ErrWrongType
	}

	var (
		value    int64
		overflow bool
	)
	s.hashes.Update(key, func(h map[string]int64, exists bool) (map[string]int64, bool) {
		if !exists {
			h = make(map[string]int64)
		}
		cur := h[field]
		if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
			overflow = true
			return h, exists
		}
		h[field] = cur + delta
		value = h[field]
		return h, true
	})
	if overflow {
		return 0, ErrOverflow
	}
	return value, nil
}

// CounterDelete removes field from the hash at key.
func (s *Store) CounterDelete(ctx context.Context, key, field string) error {
	_, err := s.HashDelete(ctx, key, field)
	return err
}

// HashDelete removes fields from the hash at key and returns how many
// existed. The key disappears with its last field.
func (s *Store) HashDelete(ctx context.Context, key string, fields ...string) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if s.sets.Contains(key) {
		return 0, ErrWrongType
	}

	var n int64
	s.hashes.Update(key, func(h map[string]int64, exists bool) (map[string]int64, bool) {
		if !exists {
			return nil, false
		}
		for _, f := range fields {
			if _, ok := h[f]; ok {
				delete(h, f)
				n++
			}
		}
		return h, len(h) > 0
	})
	return n, nil
}

// CounterGet returns field of the hash at key, or zero when absent.
func (s *Store) CounterGet(ctx context.Context, key, field string) (int64, error) {
	v, _, err := s.HashGet(ctx, key, field)
	return v, err
}

// HashGet returns field of the hash at key and whether it exists.
func (s *Store) HashGet(ctx context.Context, key, field string) (int64, bool, error) {
	if err := s.check(ctx); err != nil {
		return 0, false, err
	}
	if s.sets.Contains(key) {
		return 0, false, ErrWrongType
	}

	var (
		value int64
		found bool
	)
	s.hashes.Peek(key, func(h map[string]int64, _ bool) {
		value, found = h[field]
	})
	return value, found, nil
}

// Close releases every subscription. Later operations fail with ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	all := make(map[*Subscription]struct{})
	for _, subs := range s.subscribers {
		for sub := range subs {
			all[sub] = struct{}{}
		}
	}
	s.mu.Unlock()

	for sub := range all {
		sub.Close()
	}
	return nil
}
