package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/petermattis/goid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rerrors "github.com/mirkobrombin/go-remutex/v1/errors"
	"github.com/mirkobrombin/go-remutex/v1/metrics"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-remutex/v1/lock")

// ErrTooManyKeys is returned when the configured key limit is reached.
var ErrTooManyKeys = errors.New("lock: too many keys")

const defaultShards = 32

type entry struct {
	owner  int64
	depth  int
	refs   int
	notify chan struct{}
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Keyed provides per-key reentrant locks. A goroutine holding a key may
// acquire it again without blocking; other goroutines wait until the hold
// depth for that key returns to zero. Keys are independent of one another.
type Keyed struct {
	shards       []shard
	mask         uint64
	maxKeys      int
	keyCount     atomic.Int64
	closed       atomic.Bool
	done         chan struct{}
	traceEnabled bool
}

// Option configures a Keyed locker.
type Option func(*Keyed)

// WithShards sets the number of shards. The value must be a positive power
// of two; other values fall back to the default of 32.
func WithShards(n int) Option {
	return func(k *Keyed) {
		if n > 0 && n&(n-1) == 0 {
			k.shards = make([]shard, n)
			k.mask = uint64(n - 1)
		}
	}
}

// WithMaxKeys limits the number of live keys. Acquisitions on new keys fail
// with ErrTooManyKeys once the limit is reached. A non-positive value means
// no limit.
func WithMaxKeys(n int) Option {
	return func(k *Keyed) {
		k.maxKeys = n
	}
}

// WithTracing enables OpenTelemetry spans around blocking acquisitions.
func WithTracing() Option {
	return func(k *Keyed) {
		k.traceEnabled = true
	}
}

// NewKeyed returns a new keyed locker.
func NewKeyed(opts ...Option) *Keyed {
	k := &Keyed{
		shards: make([]shard, defaultShards),
		mask:   defaultShards - 1,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}
	for i := range k.shards {
		k.shards[i].entries = make(map[string]*entry)
	}
	return k
}

// Acquire blocks until the key is held by the calling goroutine, the context
// is cancelled, or the locker is closed. A goroutine already holding the key
// re-acquires it immediately.
func (k *Keyed) Acquire(ctx context.Context, key string) (*Handle, error) {
	if k.traceEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "Keyed.Acquire",
			trace.WithAttributes(attribute.String("remutex.key", key)))
		defer span.End()
	}
	gid := goid.Get()
	for {
		s := k.shard(key)
		s.mu.Lock()
		if k.closed.Load() {
			s.mu.Unlock()
			return nil, rerrors.ErrClosed
		}
		e, err := k.entryLocked(s, key)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if e.depth == 0 || e.owner == gid {
			h := k.holdLocked(e, key, gid)
			s.mu.Unlock()
			return h, nil
		}
		ch := e.notify
		e.refs++
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			k.unref(key, e)
			return nil, ctx.Err()
		case <-k.done:
			k.unref(key, e)
			return nil, rerrors.ErrClosed
		}
		k.unref(key, e)
	}
}

// TryAcquire attempts to take the key without blocking. It returns
// ErrWouldBlock when another goroutine holds the key.
func (k *Keyed) TryAcquire(key string) (*Handle, error) {
	gid := goid.Get()
	s := k.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.closed.Load() {
		return nil, rerrors.ErrClosed
	}
	e, err := k.entryLocked(s, key)
	if err != nil {
		return nil, err
	}
	if e.depth != 0 && e.owner != gid {
		metrics.ContentionCounter.Inc()
		return nil, rerrors.ErrWouldBlock
	}
	return k.holdLocked(e, key, gid), nil
}

// Len reports the number of live keys (holders plus waiters).
func (k *Keyed) Len() int {
	return int(max(k.keyCount.Load(), 0))
}

// Keys returns a snapshot of the live keys, for debugging only.
func (k *Keyed) Keys() []string {
	keys := make([]string, 0, max(k.keyCount.Load(), 0))
	for i := range k.shards {
		s := &k.shards[i]
		s.mu.Lock()
		for key := range s.entries {
			keys = append(keys, key)
		}
		s.mu.Unlock()
	}
	return keys
}

// Close rejects new acquisitions and wakes every blocked Acquire with
// ErrClosed. Held handles remain valid and can still be unlocked.
func (k *Keyed) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return rerrors.ErrClosed
	}
	close(k.done)
	return nil
}

func (k *Keyed) shard(key string) *shard {
	return &k.shards[xxhash.Sum64String(key)&k.mask]
}

// entryLocked fetches or creates the entry for key. The shard mutex must be
// held.
func (k *Keyed) entryLocked(s *shard, key string) (*entry, error) {
	e, ok := s.entries[key]
	if !ok {
		if k.maxKeys > 0 && k.keyCount.Load() >= int64(k.maxKeys) {
			return nil, ErrTooManyKeys
		}
		e = &entry{}
		s.entries[key] = e
		k.keyCount.Add(1)
	}
	return e, nil
}

// holdLocked records one level of ownership for gid. The shard mutex must be
// held and the entry must be free or already owned by gid.
func (k *Keyed) holdLocked(e *entry, key string, gid int64) *Handle {
	if e.depth == 0 {
		e.owner = gid
		e.notify = make(chan struct{})
		metrics.HeldGauge.Inc()
	}
	e.depth++
	metrics.AcquireCounter.Inc()
	return &Handle{k: k, key: key, owner: gid, token: uuid.NewString()}
}

// unref drops a waiter reference, deleting the entry once nobody holds or
// waits on it.
func (k *Keyed) unref(key string, e *entry) {
	s := k.shard(key)
	s.mu.Lock()
	e.refs--
	if e.refs == 0 && e.depth == 0 && s.entries[key] == e {
		delete(s.entries, key)
		k.keyCount.Add(-1)
	}
	s.mu.Unlock()
}

// Handle represents one level of a held key. Handles are confined to the
// goroutine that acquired them.
type Handle struct {
	k     *Keyed
	key   string
	owner int64
	token string
	done  atomic.Bool
}

// Key returns the key this handle holds.
func (h *Handle) Key() string {
	return h.key
}

// Token returns the unique token identifying this acquisition, useful when
// correlating lock activity in logs or traces.
func (h *Handle) Token() string {
	return h.token
}

// Unlock releases one level of the key. It is idempotent and returns
// ErrNotHeld on repeated calls or when invoked from a goroutine other than
// the acquiring one. The key becomes available to other goroutines only when
// its hold depth returns to zero.
func (h *Handle) Unlock() error {
	if goid.Get() != h.owner {
		return rerrors.ErrNotHeld
	}
	if !h.done.CompareAndSwap(false, true) {
		return rerrors.ErrNotHeld
	}
	s := h.k.shard(h.key)
	s.mu.Lock()
	e := s.entries[h.key]
	if e == nil || e.owner != h.owner || e.depth == 0 {
		s.mu.Unlock()
		return rerrors.ErrNotHeld
	}
	e.depth--
	if e.depth == 0 {
		e.owner = 0
		close(e.notify)
		metrics.HeldGauge.Dec()
		if e.refs == 0 {
			delete(s.entries, h.key)
			h.k.keyCount.Add(-1)
		}
	}
	s.mu.Unlock()
	return nil
}
