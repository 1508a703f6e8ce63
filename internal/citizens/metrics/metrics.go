package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Aggregate labels.
const (
	AggregateBirthdays   = "birthdays"
	AggregatePercentiles = "percentiles"
)

// Cache result labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
	// CacheBypass counts reads that skipped the cache because the import's
	// last invalidation failed.
	CacheBypass = "bypass"
)

// Metrics provides observability for the citizens module.
type Metrics struct {
	ImportsCreated      prometheus.Counter
	CitizensImported    prometheus.Counter
	CitizenUpdates      *prometheus.CounterVec
	AggregationLatency  *prometheus.HistogramVec
	StatsCacheResults   *prometheus.CounterVec
	EventPublishFailure *prometheus.CounterVec
}

// New registers the citizens metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ImportsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "census_imports_created_total",
			Help: "Total number of imports created",
		}),
		CitizensImported: factory.NewCounter(prometheus.CounterOpts{
			Name: "census_citizens_imported_total",
			Help: "Total number of citizens stored by imports",
		}),
		CitizenUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "census_citizen_updates_total",
			Help: "Total citizen updates by whether the relative set was replaced",
		}, []string{"relatives"}), // relatives: "replaced", "unchanged"

		AggregationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "census_aggregation_duration_seconds",
			Help:    "Duration of stats aggregation over an import, excluding cache hits",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"aggregate"}),

		StatsCacheResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "census_stats_cache_results_total",
			Help: "Stats cache lookups by aggregate and result",
		}, []string{"aggregate", "result"}),

		EventPublishFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "census_event_publish_failures_total",
			Help: "Domain events that could not be published",
		}, []string{"type"}),
	}
}

func (m *Metrics) IncrementImportsCreated(citizens int) {
	if m != nil {
		m.ImportsCreated.Inc()
		m.CitizensImported.Add(float64(citizens))
	}
}

func (m *Metrics) IncrementCitizenUpdates(relativesReplaced bool) {
	if m == nil {
		return
	}
	label := "unchanged"
	if relativesReplaced {
		label = "replaced"
	}
	m.CitizenUpdates.WithLabelValues(label).Inc()
}

// ObserveAggregation records the time spent computing an aggregate.
func (m *Metrics) ObserveAggregation(aggregate string, d time.Duration) {
	if m != nil {
		m.AggregationLatency.WithLabelValues(aggregate).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementCacheResult(aggregate, result string) {
	if m != nil {
		m.StatsCacheResults.WithLabelValues(aggregate, result).Inc()
	}
}

func (m *Metrics) IncrementPublishFailure(eventType string) {
	if m != nil {
		m.EventPublishFailure.WithLabelValues(eventType).Inc()
	}
}
