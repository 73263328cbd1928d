// Package lockmgr provides process-local, advisory, exclusive locks
// keyed by user key. Every state-changing command holds its key's lock
// for the duration of the read-modify-write; multi-key commands acquire
// all their locks in one sorted batch so two commands can never wait on
// each other's keys in opposite orders.
package lockmgr

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// LockMgr hands out per-key exclusive locks. The zero value is not
// usable; construct with New.
type LockMgr struct {
	locks *xsync.MapOf[string, *keyLock]
}

// New creates an empty lock manager.
func New() *LockMgr {
	return &LockMgr{locks: xsync.NewMapOf[string, *keyLock]()}
}

func (m *LockMgr) acquire(key string) *keyLock {
	l, _ := m.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			old = &keyLock{}
		}
		old.refs++
		return old, false
	})
	l.mu.Lock()
	return l
}

func (m *LockMgr) release(key string, l *keyLock) {
	l.mu.Unlock()
	m.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, bool) {
		if !loaded {
			return old, true
		}
		old.refs--
		return old, old.refs == 0
	})
}

// Lock blocks until the key's lock is free, then returns the release
// function. Callers must defer it.
func (m *LockMgr) Lock(key string) func() {
	l := m.acquire(key)
	return func() { m.release(key, l) }
}

// MultiLock acquires the locks of every distinct key in a single
// operation. Keys are sorted before acquisition to preclude deadlock
// and released in reverse order.
func (m *LockMgr) MultiLock(keys []string) func() {
	distinct := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		distinct = append(distinct, k)
	}
	sort.Strings(distinct)

	held := make([]*keyLock, len(distinct))
	for i, k := range distinct {
		held[i] = m.acquire(k)
	}
	return func() {
		for i := len(distinct) - 1; i >= 0; i-- {
			m.release(distinct[i], held[i])
		}
	}
}
