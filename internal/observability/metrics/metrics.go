package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackpartner_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trackpartner_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	codeGenerationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackpartner_code_generation_attempts",
		Help:    "Draws needed to find a free tracking code",
		Buckets: []float64{1, 2, 3, 5, 10, 20},
	})

	codeGenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackpartner_code_generation_exhausted_total",
		Help: "Tracking code generations that ran out of attempts",
	})

	relationshipOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackpartner_relationship_operations_total",
		Help: "Connect and disconnect calls by result",
	}, []string{"operation", "result"})

	locationSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackpartner_location_samples_total",
		Help: "Location samples recorded by address source",
	}, []string{"address"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trackpartner_partner_resolve_duration_seconds",
		Help:    "Duration of partner location resolution",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	realtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackpartner_realtime_subscribers",
		Help: "Open WebSocket push subscriptions",
	})

	storeRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trackpartner_store_rows",
		Help: "Row counts sampled by the stats worker",
	}, []string{"table"})

	activeProfiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackpartner_active_profiles",
		Help: "Profiles with tracking enabled",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveCodeGeneration records how many draws a generation took
func ObserveCodeGeneration(attempts int, exhausted bool) {
	if exhausted {
		codeGenerationFailures.Inc()
		return
	}
	codeGenerationAttempts.Observe(float64(attempts))
}

// ObserveRelationship counts a connect or disconnect outcome
func ObserveRelationship(operation, result string) {
	relationshipOperations.WithLabelValues(operation, result).Inc()
}

// ObserveLocationSample counts a recorded sample; source is "geocoded" or "coordinates"
func ObserveLocationSample(source string) {
	locationSamples.WithLabelValues(source).Inc()
}

// ObserveResolve records a partner resolution with a result label
func ObserveResolve(result string, duration time.Duration) {
	resolveDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// IncrementSubscribers increments the push subscriber gauge.
func IncrementSubscribers() {
	realtimeSubscribers.Inc()
}

// DecrementSubscribers decrements the push subscriber gauge.
func DecrementSubscribers() {
	realtimeSubscribers.Dec()
}

// SetStoreRows sets the sampled row count for table.
func SetStoreRows(table string, count int) {
	if count < 0 {
		count = 0
	}
	storeRows.WithLabelValues(table).Set(float64(count))
}

// SetActiveProfiles sets the number of profiles with tracking enabled.
func SetActiveProfiles(count int) {
	if count < 0 {
		count = 0
	}
	activeProfiles.Set(float64(count))
}
