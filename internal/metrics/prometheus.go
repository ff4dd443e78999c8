package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements Collector on prometheus counters.
type PrometheusCollector struct {
	scoringDuration *prometheus.HistogramVec
	recommendations *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	errs            *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	deadLetters     prometheus.Counter
	circuitState    *prometheus.GaugeVec
}

// NewPrometheusCollector registers the pipeline metrics on the given
// registerer (pass prometheus.DefaultRegisterer in production).
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		scoringDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtoshield_scoring_duration_seconds",
			Help:    "Wall-clock time of one full scoring pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
		recommendations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtoshield_recommendations_total",
			Help: "Scoring recommendations by outcome.",
		}, []string{"recommendation"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtoshield_cache_hits_total",
			Help: "Feature cache hits by data class.",
		}, []string{"class"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtoshield_cache_misses_total",
			Help: "Feature cache misses by data class.",
		}, []string{"class"}),
		errs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtoshield_errors_total",
			Help: "Pipeline errors by operation and type.",
		}, []string{"operation", "type"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtoshield_queue_depth",
			Help: "Jobs currently waiting in the scoring queue.",
		}),
		deadLetters: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtoshield_dead_letters_total",
			Help: "Jobs routed to the dead-letter queue.",
		}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rtoshield_ml_circuit_state",
			Help: "ML circuit breaker state (1 for the active state).",
		}, []string{"state"}),
	}
}

func (c *PrometheusCollector) RecordScoringDuration(platform string, d time.Duration) {
	c.scoringDuration.WithLabelValues(platform).Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordRecommendation(recommendation string) {
	c.recommendations.WithLabelValues(recommendation).Inc()
}

func (c *PrometheusCollector) RecordCacheHit(class string) {
	c.cacheHits.WithLabelValues(class).Inc()
}

func (c *PrometheusCollector) RecordCacheMiss(class string) {
	c.cacheMisses.WithLabelValues(class).Inc()
}

func (c *PrometheusCollector) RecordError(operation, errType string) {
	c.errs.WithLabelValues(operation, errType).Inc()
}

func (c *PrometheusCollector) RecordQueueDepth(depth int64) {
	c.queueDepth.Set(float64(depth))
}

func (c *PrometheusCollector) RecordDeadLetter() {
	c.deadLetters.Inc()
}

func (c *PrometheusCollector) RecordCircuitState(state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		c.circuitState.WithLabelValues(s).Set(v)
	}
}
