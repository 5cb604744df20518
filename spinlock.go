package kmertab

import (
	"runtime"
	"sync/atomic"
)

// spinLock is a test-and-test-and-set lock. Shard critical sections are a
// single probe plus a counter update, so waiters spin instead of parking.
type spinLock struct {
	held atomic.Bool
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *spinLock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

// Lock spins until the lock is acquired.
func (l *spinLock) Lock() {
	for !l.TryLock() {
		for l.held.Load() {
			runtime.Gosched()
		}
	}
}

func (l *spinLock) Unlock() {
	l.held.Store(false)
}
