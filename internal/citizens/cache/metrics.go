package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the stats cache circuit breaker.
type Metrics struct {
	CircuitBreakerState   prometheus.Gauge
	CircuitBreakerSkipped prometheus.Counter
}

// NewMetrics creates and registers the cache metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "census_stats_cache_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		CircuitBreakerSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "census_stats_cache_circuit_breaker_skipped_total",
			Help: "Total number of cache reads skipped because the circuit breaker was open",
		}),
	}
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

func (m *Metrics) IncCircuitBreakerSkipped() {
	if m == nil {
		return
	}
	m.CircuitBreakerSkipped.Inc()
}
