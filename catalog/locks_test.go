package catalog

import (
	"testing"
	"time"
)

func TestReentrantWriteLock(t *testing.T) {
	var m ownedRWMutex

	m.lock()
	if !m.holdsWrite() {
		t.Errorf("holdsWrite() got false; want true")
	}

	// Acquiring the write lock twice from the same goroutine is a
	// programming error, not a deadlock.
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("re-entrant lock() did not panic")
			}
		}()
		m.lock()
	}()

	m.unlock()
	if m.holdsWrite() {
		t.Errorf("holdsWrite() got true; want false")
	}
}

func TestNestedReadLock(t *testing.T) {
	var m ownedRWMutex

	unlock := m.rlock()
	if !m.holdsRead() {
		t.Errorf("holdsRead() got false; want true")
	}

	// A nested read by the same goroutine must not re-acquire.
	nested := m.rlock()
	nested()
	if !m.holdsRead() {
		t.Errorf("nested release dropped the outer read lock")
	}

	unlock()
	if m.holdsRead() {
		t.Errorf("holdsRead() got true; want false")
	}
}

func TestReadUnderWriteLock(t *testing.T) {
	var m ownedRWMutex

	m.lock()
	defer m.unlock()

	// Reads from the writing goroutine proceed without blocking.
	unlock := m.rlock()
	unlock()
}

func TestWriteBlocksOtherGoroutines(t *testing.T) {
	var m ownedRWMutex

	m.lock()

	acquired := make(chan struct{})
	go func() {
		unlock := m.rlock()
		close(acquired)
		unlock()
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatalf("reader acquired the lock while a writer held it")
	default:
	}

	m.unlock()
	<-acquired
}
