// Package poison tracks whether a lock's protected value may have been left
// inconsistent by a holder that failed inside its critical section.
package poison

import "sync/atomic"

// Flag records the poison state of a single lock. The zero value is a clean
// flag ready for use.
type Flag struct {
	failed atomic.Bool
}

// Token witnesses the flag state observed when a critical section was
// entered. It is consumed by Done when the section exits.
type Token struct {
	wasPoisoned bool
}

// Borrow snapshots the flag at critical-section entry.
func (f *Flag) Borrow() Token {
	return Token{wasPoisoned: f.failed.Load()}
}

// Done finalizes a critical section. A section that failed marks the flag
// poisoned for every future acquirer; the transition is sticky. A section
// entered while the flag was already poisoned never flips the state on its
// own exit, so recovery work under the lock does not re-poison it.
func (f *Flag) Done(t Token, failed bool) {
	if failed && !t.wasPoisoned {
		f.failed.Store(true)
	}
}

// Poisoned reports whether a previous holder failed while holding the lock.
func (f *Flag) Poisoned() bool {
	return f.failed.Load()
}

// Clear resets the flag. The caller vouches for the consistency of whatever
// the lock protects; the library never clears a flag on its own.
func (f *Flag) Clear() {
	f.failed.Store(false)
}

// Error reports that a lock was acquired after a previous holder failed
// inside its critical section. The lock itself is still usable; the error
// carries the live guard so the caller can inspect and repair the protected
// value deliberately instead of having it hidden away.
type Error[G any] struct {
	guard G
}

// NewError wraps guard in a poison Error.
func NewError[G any](guard G) *Error[G] {
	return &Error[G]{guard: guard}
}

func (e *Error[G]) Error() string {
	return "poisoned lock: a previous holder failed while holding the lock"
}

// Inner returns the guard carried by the error.
func (e *Error[G]) Inner() G {
	return e.guard
}
