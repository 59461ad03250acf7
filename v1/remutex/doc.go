// Package remutex provides a reentrant mutual exclusion lock that owns the
// value it protects. The goroutine holding the lock may acquire it again any
// number of times without deadlocking itself, while other goroutines block
// until the hold depth returns to zero. A guard released after a failed
// critical section poisons the lock, so later acquirers learn that the value
// may have been left inconsistent.
package remutex
