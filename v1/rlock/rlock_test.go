package rlock

import (
	"errors"
	"testing"
	"time"

	rerrors "github.com/mirkobrombin/go-remutex/v1/errors"
)

func TestReentrantDepth(t *testing.T) {
	m := New()
	m.Lock()
	m.Lock()
	m.Lock()
	if d := m.Depth(); d != 3 {
		t.Fatalf("expected depth 3, got %d", d)
	}
	m.Unlock()
	m.Unlock()
	if d := m.Depth(); d != 1 {
		t.Fatalf("expected depth 1, got %d", d)
	}
	m.Unlock()
	if d := m.Depth(); d != 0 {
		t.Fatalf("expected depth 0, got %d", d)
	}
}

func TestMutualExclusion(t *testing.T) {
	m := New()
	m.Lock()

	tried := make(chan bool)
	go func() {
		tried <- m.TryLock()
	}()
	if got := <-tried; got {
		t.Fatal("trylock from second goroutine should fail while held")
	}

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired the lock while held")
	case <-time.After(10 * time.Millisecond):
	}

	m.Unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine never acquired the lock after release")
	}
}

func TestTryLockReentrant(t *testing.T) {
	m := New()
	if !m.TryLock() {
		t.Fatal("trylock on free lock should succeed")
	}
	if !m.TryLock() {
		t.Fatal("reentrant trylock should succeed")
	}
	m.Unlock()
	m.Unlock()
}

func TestUnlockFromWrongGoroutinePanics(t *testing.T) {
	m := New()
	m.Lock()
	defer m.Unlock()

	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		m.Unlock()
	}()
	if r := <-done; r == nil {
		t.Fatal("expected panic on unlock from non-owner goroutine")
	}
}

func TestDepthForNonOwner(t *testing.T) {
	m := New()
	m.Lock()
	defer m.Unlock()

	depth := make(chan int)
	go func() {
		depth <- m.Depth()
	}()
	if d := <-depth; d != 0 {
		t.Fatalf("expected depth 0 for non-owner, got %d", d)
	}
}

func TestClose(t *testing.T) {
	m := New()
	m.Lock()
	if err := m.Close(); !errors.Is(err, rerrors.ErrHeld) {
		t.Fatalf("expected ErrHeld while locked, got %v", err)
	}
	m.Unlock()

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !m.Closed() {
		t.Fatal("expected lock to report closed")
	}
	if err := m.Close(); !errors.Is(err, rerrors.ErrClosed) {
		t.Fatalf("expected ErrClosed on second close, got %v", err)
	}
}

func BenchmarkLockUnlock(b *testing.B) {
	m := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Lock()
		m.Unlock()
	}
}

func BenchmarkReentrantLock(b *testing.B) {
	m := New()
	m.Lock()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Lock()
		m.Unlock()
	}
	b.StopTimer()
	m.Unlock()
}
