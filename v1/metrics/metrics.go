package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks successful keyed lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remutex_acquire_total",
		Help: "Total number of successful lock acquisitions",
	})
	// ContentionCounter tracks non-blocking acquisitions that would block.
	ContentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remutex_would_block_total",
		Help: "Total number of non-blocking acquisitions that would block",
	})
	// PoisonCounter tracks acquisitions that observed a poisoned lock.
	PoisonCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remutex_poisoned_total",
		Help: "Total number of acquisitions that observed a poisoned lock",
	})
	// HeldGauge reports the number of keys currently held.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remutex_held_keys",
		Help: "Current number of held keyed locks",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the lock metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ContentionCounter, PoisonCounter, HeldGauge)
}
