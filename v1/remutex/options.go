package remutex

import "github.com/prometheus/client_golang/prometheus"

// Option configures a Mutex.
type Option[T any] func(*Mutex[T])

// WithMetrics enables Prometheus metrics collection using the provided
// registerer. The collectors carry fixed names, so register at most one
// Mutex per registry.
func WithMetrics[T any](reg prometheus.Registerer) Option[T] {
	return func(m *Mutex[T]) {
		m.acquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remutex_mutex_acquire_total",
			Help: "Total number of successful acquisitions",
		})
		m.contentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remutex_mutex_would_block_total",
			Help: "Total number of non-blocking acquisitions that would block",
		})
		m.poisonCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remutex_mutex_poisoned_total",
			Help: "Total number of acquisitions that observed a poisoned mutex",
		})
		m.latencyHist = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "remutex_mutex_acquire_latency_seconds",
			Help:    "Latency of blocking acquisitions",
			Buckets: prometheus.DefBuckets,
		})
		reg.MustRegister(m.acquireCounter, m.contentionCounter, m.poisonCounter, m.latencyHist)
	}
}

// WithTracing enables OpenTelemetry spans around blocking acquisitions.
func WithTracing[T any]() Option[T] {
	return func(m *Mutex[T]) {
		m.traceEnabled = true
	}
}
