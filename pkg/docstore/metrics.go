package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// operationsCounter counts store operations by outcome.
	operationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstore",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations by container, operation and result",
		},
		[]string{"container", "op", "result"},
	)

	// expiredCounter counts blobs deleted because their TTL elapsed.
	expiredCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstore",
			Subsystem: "store",
			Name:      "expired_deleted_total",
			Help:      "Total number of expired blobs deleted, by trigger (read or cleanup)",
		},
		[]string{"container", "trigger"},
	)

	// caseFallbackCounter counts lookups resolved by case-insensitive match.
	caseFallbackCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstore",
			Subsystem: "store",
			Name:      "case_fallback_total",
			Help:      "Total number of lookups resolved by case-insensitive key match",
		},
		[]string{"container"},
	)

	// bytesWrittenCounter tracks payload bytes written.
	bytesWrittenCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstore",
			Subsystem: "store",
			Name:      "bytes_written_total",
			Help:      "Total number of payload bytes written",
		},
		[]string{"container"},
	)
)

func init() {
	prometheus.MustRegister(
		operationsCounter,
		expiredCounter,
		caseFallbackCounter,
		bytesWrittenCounter,
	)
}

// Metrics records store activity for one container.
type Metrics struct {
	container string
}

// NewMetrics returns a Metrics handle labelled with the container name
func NewMetrics(container string) *Metrics {
	return &Metrics{container: container}
}

func (m *Metrics) observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case IsNotFound(err):
		result = "not_found"
	default:
		result = "error"
	}
	operationsCounter.WithLabelValues(m.container, op, result).Inc()
}

func (m *Metrics) expired(trigger string, n int) {
	if n > 0 {
		expiredCounter.WithLabelValues(m.container, trigger).Add(float64(n))
	}
}

func (m *Metrics) caseFallback() {
	caseFallbackCounter.WithLabelValues(m.container).Inc()
}

func (m *Metrics) written(n int) {
	bytesWrittenCounter.WithLabelValues(m.container).Add(float64(n))
}
