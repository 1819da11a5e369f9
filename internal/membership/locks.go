package membership

import "sync"

// groupLocks is a keyed mutex. Entries are dropped when unused.
type groupLocks struct {
	mu    sync.Mutex
	locks map[string]*groupLock
}

type groupLock struct {
	mu   sync.Mutex
	refs int
}

func newGroupLocks() *groupLocks {
	return &groupLocks{locks: make(map[string]*groupLock)}
}

// lock acquires the mutex for group and returns its release function.
func (g *groupLocks) lock(group string) func() {
	g.mu.Lock()
	l, ok := g.locks[group]
	if !ok {
		l = &groupLock{}
		g.locks[group] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, group)
		}
		g.mu.Unlock()
	}
}

func (g *groupLocks) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
