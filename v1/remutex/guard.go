package remutex

import (
	"sync/atomic"

	rerrors "github.com/mirkobrombin/go-remutex/v1/errors"
	"github.com/mirkobrombin/go-remutex/v1/poison"
)

// Guard grants access to the protected value while the acquisition it
// represents is outstanding. A Guard is confined to the goroutine that
// created it; releasing it elsewhere panics in the underlying primitive.
// Guards nest: releases must mirror acquisitions in reverse order.
type Guard[T any] struct {
	m      *Mutex[T]
	tok    poison.Token
	failed bool
	done   atomic.Bool
}

// Value returns a pointer to the protected value. The pointer must not be
// retained past Unlock.
func (g *Guard[T]) Value() *T {
	return &g.m.value
}

// Poison marks this critical section as failed. The mutex transitions to
// the poisoned state when the guard is released and stays there until
// ClearPoison is called.
func (g *Guard[T]) Poison() {
	g.failed = true
}

// Unlock releases the guard. The poison state is finalized strictly before
// the primitive is released, so a goroutine that unblocks immediately
// afterwards always observes it. Unlock is idempotent and returns
// ErrNotHeld after the first call.
func (g *Guard[T]) Unlock() error {
	if !g.done.CompareAndSwap(false, true) {
		return rerrors.ErrNotHeld
	}
	g.m.flag.Done(g.tok, g.failed)
	g.m.inner.Unlock()
	return nil
}
