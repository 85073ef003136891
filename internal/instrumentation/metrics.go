package instrumentation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared across the proxy,
// cache and aggregation layers.
type Metrics struct {
	FetchLatency   *prometheus.HistogramVec
	FetchTotal     *prometheus.CounterVec
	CircuitState   *prometheus.GaugeVec
	CacheOps       *prometheus.CounterVec
	BatchSize      prometheus.Histogram
	BasketCalcs    prometheus.Counter
	BasketCalcErrs prometheus.Counter
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide metrics set, registering the
// collectors on first use.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = &Metrics{
			FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "basketflow_source_fetch_duration_seconds",
				Help:    "Latency of provider fetches by data source",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			}, []string{"source"}),

			FetchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "basketflow_source_fetch_total",
				Help: "Provider fetches by data source and outcome",
			}, []string{"source", "outcome"}),

			CircuitState: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "basketflow_source_circuit_state",
				Help: "Circuit breaker state by data source (0=closed, 1=half-open, 2=open)",
			}, []string{"source"}),

			CacheOps: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "basketflow_cache_operations_total",
				Help: "Quote cache operations by type",
			}, []string{"op"}),

			BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "basketflow_batch_request_size",
				Help:    "Number of instruments per batch market data request",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
			}),

			BasketCalcs: promauto.NewCounter(prometheus.CounterOpts{
				Name: "basketflow_basket_calculations_total",
				Help: "Completed basket price aggregations",
			}),

			BasketCalcErrs: promauto.NewCounter(prometheus.CounterOpts{
				Name: "basketflow_basket_calculation_errors_total",
				Help: "Failed basket price aggregations",
			}),
		}
	})
	return defaultMetrics
}

// ObserveFetch records one provider fetch.
func (m *Metrics) ObserveFetch(source, outcome string, seconds float64) {
	m.FetchTotal.WithLabelValues(source, outcome).Inc()
	m.FetchLatency.WithLabelValues(source).Observe(seconds)
}

// SetCircuitState publishes the breaker state as a gauge.
func (m *Metrics) SetCircuitState(source string, state float64) {
	m.CircuitState.WithLabelValues(source).Set(state)
}

// RecordCacheOp counts one cache operation (hit, miss, put, delete,
// eviction).
func (m *Metrics) RecordCacheOp(op string) {
	m.CacheOps.WithLabelValues(op).Inc()
}
