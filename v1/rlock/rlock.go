// Package rlock implements the goroutine-affine recursive lock primitive
// that backs the remutex and lock packages. The goroutine holding the lock
// may acquire it again any number of times; other goroutines block until the
// hold depth returns to zero.
package rlock

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"

	rerrors "github.com/mirkobrombin/go-remutex/v1/errors"
)

// noOwner marks the lock as free. Goroutine IDs are always positive.
const noOwner = -1

// RecursiveMutex is a mutual exclusion lock that the holding goroutine may
// re-acquire without blocking itself. Acquisition order across competing
// goroutines follows the underlying sync.Mutex; no fairness is guaranteed.
//
// A RecursiveMutex must not be copied after first use.
type RecursiveMutex struct {
	mu     sync.Mutex
	owner  atomic.Int64
	depth  int
	closed atomic.Bool
}

// New returns an initialized, unlocked RecursiveMutex.
func New() *RecursiveMutex {
	m := &RecursiveMutex{}
	m.owner.Store(noOwner)
	return m
}

// Lock acquires the lock, blocking the calling goroutine while another
// goroutine holds it. Re-acquisition by the current holder succeeds
// immediately and increments the hold depth.
func (m *RecursiveMutex) Lock() {
	gid := goid.Get()
	if m.owner.Load() == gid {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(gid)
	m.depth = 1
}

// TryLock attempts to acquire the lock without blocking and reports whether
// it succeeded. Re-acquisition by the current holder always succeeds.
func (m *RecursiveMutex) TryLock() bool {
	gid := goid.Get()
	if m.owner.Load() == gid {
		m.depth++
		return true
	}
	if !m.mu.TryLock() {
		return false
	}
	m.owner.Store(gid)
	m.depth = 1
	return true
}

// Unlock releases one level of the lock. The lock becomes available to other
// goroutines only when the depth returns to zero. Unlock panics when called
// from a goroutine that does not hold the lock; releases must mirror the
// acquisitions of the owning goroutine.
func (m *RecursiveMutex) Unlock() {
	gid := goid.Get()
	if owner := m.owner.Load(); owner != gid {
		panic(fmt.Sprintf("rlock: unlock by goroutine %d, lock owned by %d", gid, owner))
	}
	m.depth--
	if m.depth != 0 {
		return
	}
	m.owner.Store(noOwner)
	m.mu.Unlock()
}

// Depth reports the hold depth of the calling goroutine. It returns zero
// when the caller does not hold the lock.
func (m *RecursiveMutex) Depth() int {
	if m.owner.Load() != goid.Get() {
		return 0
	}
	return m.depth
}

// Close tears the lock down exactly once. It fails with ErrHeld while any
// goroutine holds the lock and with ErrClosed on repeated calls.
func (m *RecursiveMutex) Close() error {
	if !m.mu.TryLock() {
		return rerrors.ErrHeld
	}
	defer m.mu.Unlock()
	if !m.closed.CompareAndSwap(false, true) {
		return rerrors.ErrClosed
	}
	return nil
}

// Closed reports whether Close has completed.
func (m *RecursiveMutex) Closed() bool {
	return m.closed.Load()
}
