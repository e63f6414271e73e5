// Package sync provides the spinlock used to serialize access to the memory
// managers and the device buses.
package sync

import "sync/atomic"

var (
	// yieldFn is invoked every spinsBeforeYield failed attempts. The kernel
	// has no scheduler so it stays nil outside of tests.
	yieldFn func()
)

const spinsBeforeYield = 64

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. The zero value is an unlocked Spinlock.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for spins := 1; !atomic.CompareAndSwapUint32(&l.state, 0, 1); spins++ {
		if spins%spinsBeforeYield == 0 && yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
