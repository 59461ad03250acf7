package remutex

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rerrors "github.com/mirkobrombin/go-remutex/v1/errors"
	"github.com/mirkobrombin/go-remutex/v1/metrics"
	"github.com/mirkobrombin/go-remutex/v1/poison"
	"github.com/mirkobrombin/go-remutex/v1/rlock"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-remutex/v1/remutex")

// Mutex is a reentrant mutual exclusion lock owning a value of type T. The
// value is reachable only through a Guard returned by an acquisition. A
// Mutex may be shared freely across goroutines; every Guard stays confined
// to the goroutine that acquired it.
type Mutex[T any] struct {
	inner  *rlock.RecursiveMutex
	flag   poison.Flag
	value  T
	closed atomic.Bool

	acquireCounter    prometheus.Counter
	contentionCounter prometheus.Counter
	poisonCounter     prometheus.Counter
	latencyHist       prometheus.Histogram
	traceEnabled      bool
}

// New returns an unlocked Mutex protecting value. Construction cannot fail.
func New[T any](value T, opts ...Option[T]) *Mutex[T] {
	m := &Mutex[T]{inner: rlock.New(), value: value}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lock acquires the mutex, blocking the calling goroutine until it is
// available. A goroutine that already holds the mutex re-acquires it
// immediately without blocking. When a previous holder failed inside its
// critical section, the mutex is still acquired and the guard travels inside
// the returned *poison.Error so the caller can reach the value and repair
// it.
func (m *Mutex[T]) Lock() (*Guard[T], error) {
	var span trace.Span
	var start time.Time
	if m.traceEnabled {
		_, span = tracer.Start(context.Background(), "Mutex.Lock")
		defer span.End()
		start = time.Now()
	} else if m.latencyHist != nil {
		start = time.Now()
	}

	if m.traceEnabled || m.latencyHist != nil {
		defer func() {
			latency := time.Since(start)
			if m.traceEnabled {
				span.SetAttributes(attribute.Int64("remutex.acquire_latency_ms", latency.Milliseconds()))
			}
			if m.latencyHist != nil {
				m.latencyHist.Observe(latency.Seconds())
			}
		}()
	}

	if m.closed.Load() {
		return nil, rerrors.ErrClosed
	}
	m.inner.Lock()
	return m.newGuard()
}

// TryLock attempts to acquire the mutex without blocking. It returns
// ErrWouldBlock when another goroutine holds the mutex; re-acquisition by
// the current holder always succeeds. A successful acquisition follows the
// same poisoning protocol as Lock.
func (m *Mutex[T]) TryLock() (*Guard[T], error) {
	if m.closed.Load() {
		return nil, rerrors.ErrClosed
	}
	if !m.inner.TryLock() {
		if m.contentionCounter != nil {
			m.contentionCounter.Inc()
		}
		return nil, rerrors.ErrWouldBlock
	}
	return m.newGuard()
}

// Do runs fn with exclusive access to the protected value. When fn panics,
// the mutex is poisoned strictly before it is released and the panic
// resumes, so goroutines that unblock afterwards observe the failure. An
// error returned by fn propagates unchanged and does not poison. When the
// mutex is already poisoned, Do releases it again and returns the poison
// error without running fn; recover explicitly through Lock instead.
func (m *Mutex[T]) Do(fn func(value *T) error) error {
	g, err := m.Lock()
	if err != nil {
		var perr *poison.Error[*Guard[T]]
		if errors.As(err, &perr) {
			_ = perr.Inner().Unlock()
		}
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			g.Poison()
			_ = g.Unlock()
			panic(r)
		}
		_ = g.Unlock()
	}()
	return fn(g.Value())
}

// Poisoned reports whether a previous holder failed while holding the mutex.
func (m *Mutex[T]) Poisoned() bool {
	return m.flag.Poisoned()
}

// ClearPoison resets the poison state. The caller vouches for the protected
// value's consistency, typically after repairing it through the guard
// carried by a poison error.
func (m *Mutex[T]) ClearPoison() {
	m.flag.Clear()
}

// Close tears the mutex down exactly once. It fails with ErrHeld while a
// guard is outstanding and with ErrClosed on repeated calls. Acquisitions
// after Close return ErrClosed.
func (m *Mutex[T]) Close() error {
	if err := m.inner.Close(); err != nil {
		return err
	}
	m.closed.Store(true)
	return nil
}

// String renders the mutex for debugging without blocking: the value when
// the mutex is free, a Poisoned marker when a previous holder failed, or a
// placeholder when it is held elsewhere. This is a convenience, not part of
// the concurrency contract.
func (m *Mutex[T]) String() string {
	g, err := m.TryLock()
	if err != nil {
		var perr *poison.Error[*Guard[T]]
		switch {
		case errors.As(err, &perr):
			pg := perr.Inner()
			s := fmt.Sprintf("Mutex{value: Poisoned(%v)}", *pg.Value())
			_ = pg.Unlock()
			return s
		case errors.Is(err, rerrors.ErrClosed):
			return "Mutex{<closed>}"
		default:
			return "Mutex{<locked>}"
		}
	}
	s := fmt.Sprintf("Mutex{value: %v}", *g.Value())
	_ = g.Unlock()
	return s
}

// newGuard borrows the poison flag for a freshly acquired critical section.
// The primitive is already held when newGuard runs.
func (m *Mutex[T]) newGuard() (*Guard[T], error) {
	g := &Guard[T]{m: m, tok: m.flag.Borrow()}
	if m.acquireCounter != nil {
		m.acquireCounter.Inc()
	}
	if m.flag.Poisoned() {
		metrics.PoisonCounter.Inc()
		if m.poisonCounter != nil {
			m.poisonCounter.Inc()
		}
		return nil, poison.NewError(g)
	}
	return g, nil
}
