package cmap

import (
	"hash/maphash"
	"sync"
)

// DefaultStripes is the stripe count used by New.
const DefaultStripes = 32

// Map is a string-keyed map split into independently locked stripes.
type Map[V any] struct {
	seed    maphash.Seed
	mask    uint64
	stripes []stripe[V]
}

type stripe[V any] struct {
	sync.RWMutex
	m map[string]V
}

// New returns a map with DefaultStripes stripes.
func New[V any]() *Map[V] {
	return NewStriped[V](DefaultStripes)
}

// NewStriped returns a map with n stripes, rounded up to a power of two.
func NewStriped[V any](n int) *Map[V] {
	size := 1
	for size < n {
		size <<= 1
	}

	m := &Map[V]{
		seed:    maphash.MakeSeed(),
		mask:    uint64(size - 1),
		stripes: make([]stripe[V], size),
	}
	for i := range m.stripes {
		m.stripes[i].m = make(map[string]V)
	}
	return m
}

func (m *Map[V]) stripeFor(key string) *stripe[V] {
	return &m.stripes[maphash.String(m.seed, key)&m.mask]
}

// Stripes reports the number of stripes.
func (m *Map[V]) Stripes() int { return len(m.stripes) }

// Load returns the value stored under key.
func (m *Map[V]) Load(key string) (V, bool) {
	st := m.stripeFor(key)
	st.RLock()
	v, ok := st.m[key]
	st.RUnlock()
	return v, ok
}

// Store sets the value for key.
func (m *Map[V]) Store(key string, v V) {
	st := m.stripeFor(key)
	st.Lock()
	st.m[key] = v
	st.Unlock()
}

// Delete removes key. Missing keys are ignored.
func (m *Map[V]) Delete(key string) {
	m.LoadAndDelete(key)
}

// LoadAndDelete removes key and returns the value it held.
func (m *Map[V]) LoadAndDelete(key string) (V, bool) {
	st := m.stripeFor(key)
	st.Lock()
	defer st.Unlock()

	v, ok := st.m[key]
	if ok {
		delete(st.m, key)
	}
	return v, ok
}

// Contains reports whether key is present.
func (m *Map[V]) Contains(key string) bool {
	_, ok := m.Load(key)
	return ok
}

// Len counts entries across all stripes. Concurrent writers may make the
// result stale by the time it returns.
func (m *Map[V]) Len() int {
	n := 0
	for i := range m.stripes {
		st := &m.stripes[i]
		st.RLock()
		n += len(st.m)
		st.RUnlock()
	}
	return n
}

// Update replaces the value under key with whatever fn returns while the
// stripe is write-locked. When fn returns keep=false the key is removed.
// Update reports whether key is present afterwards.
//
// fn must not touch the map.
func (m *Map[V]) Update(key string, fn func(cur V, ok bool) (next V, keep bool)) bool {
	st := m.stripeFor(key)
	st.Lock()
	defer st.Unlock()

	cur, ok := st.m[key]
	next, keep := fn(cur, ok)
	if keep {
		st.m[key] = next
	} else if ok {
		delete(st.m, key)
	}
	return keep
}

// Peek hands the value under key to fn while the stripe is read-locked.
// fn may read but not modify the value.
func (m *Map[V]) Peek(key string, fn func(v V, ok bool)) {
	st := m.stripeFor(key)
	st.RLock()
	defer st.RUnlock()

	v, ok := st.m[key]
	fn(v, ok)
}

// Each calls fn for every entry, one stripe at a time, until fn returns
// false. It does not observe a single consistent snapshot.
func (m *Map[V]) Each(fn func(key string, v V) bool) {
	for i := range m.stripes {
		st := &m.stripes[i]
		st.RLock()
		for k, v := range st.m {
			if !fn(k, v) {
				st.RUnlock()
				return
			}
		}
		st.RUnlock()
	}
}
