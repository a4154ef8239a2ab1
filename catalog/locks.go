package catalog

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// ownedRWMutex is a reader/writer lock that records which goroutine holds
// it. Re-entrant write acquisition is a programming error and panics;
// nested read acquisition by the same goroutine is detected so that
// accessors can skip re-acquiring.
type ownedRWMutex struct {
	mutex   sync.RWMutex
	writer  int64
	readers sync.Map
}

func (m *ownedRWMutex) lock() {
	gid := goid.Get()
	if atomic.LoadInt64(&m.writer) == gid {
		panic("catalog: write lock already held by this goroutine")
	}
	m.mutex.Lock()
	atomic.StoreInt64(&m.writer, gid)
}

func (m *ownedRWMutex) unlock() {
	if atomic.LoadInt64(&m.writer) != goid.Get() {
		panic("catalog: write lock not held by this goroutine")
	}
	atomic.StoreInt64(&m.writer, 0)
	m.mutex.Unlock()
}

func (m *ownedRWMutex) holdsWrite() bool {
	return atomic.LoadInt64(&m.writer) == goid.Get()
}

func (m *ownedRWMutex) holdsRead() bool {
	_, ok := m.readers.Load(goid.Get())
	return ok
}

// rlock acquires the lock shared and returns the matching release func.
// If the calling goroutine already holds the lock, read or write, it
// returns a no-op release instead of deadlocking on itself.
func (m *ownedRWMutex) rlock() func() {
	if m.holdsWrite() || m.holdsRead() {
		return func() {}
	}

	gid := goid.Get()
	m.mutex.RLock()
	m.readers.Store(gid, struct{}{})
	return func() {
		m.readers.Delete(gid)
		m.mutex.RUnlock()
	}
}
