// Package lock provides in-process keyed reentrant locking. Each key behaves
// as an independent reentrant lock bound to the acquiring goroutine; shards
// keep unrelated keys from contending on a single map mutex. Cross-process
// coordination is out of scope.
package lock
