package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder publishes Prometheus metrics for cache, transport, and session
// activity. It implements the instrumentation interfaces the cache and the
// mutation pipeline accept.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheLookups     *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	mutations        *prometheus.CounterVec
	sessionTeardowns prometheus.Counter
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telefwd",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by resource class and outcome (hit, miss, stale).",
	}, []string{"resource", "outcome"})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "telefwd",
		Subsystem: "cache",
		Name:      "fetch_duration_seconds",
		Help:      "Remote fetch latency by resource class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"resource", "outcome"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telefwd",
		Subsystem: "pipeline",
		Name:      "mutations_total",
		Help:      "Mutations executed by operation and outcome.",
	}, []string{"operation", "outcome"})

	sessionTeardowns := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "telefwd",
		Subsystem: "session",
		Name:      "teardowns_total",
		Help:      "Session teardowns caused by logout or authorization failure.",
	})

	reg.MustRegister(cacheLookups, fetchDuration, mutations, sessionTeardowns)

	return &Recorder{
		gatherer:         reg,
		handler:          promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		cacheLookups:     cacheLookups,
		fetchDuration:    fetchDuration,
		mutations:        mutations,
		sessionTeardowns: sessionTeardowns,
	}
}

// Handler serves the /metrics endpoint for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return r.handler
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

// CacheLookup records one cache read and its outcome.
func (r *Recorder) CacheLookup(resource, outcome string) {
	r.cacheLookups.WithLabelValues(resource, outcome).Inc()
}

// ObserveFetch records the latency of one remote fetch.
func (r *Recorder) ObserveFetch(resource string, seconds float64, outcome string) {
	r.fetchDuration.WithLabelValues(resource, outcome).Observe(seconds)
}

// Mutation records one pipeline write and its outcome.
func (r *Recorder) Mutation(operation, outcome string) {
	r.mutations.WithLabelValues(operation, outcome).Inc()
}

// SessionTeardown records one credential teardown.
func (r *Recorder) SessionTeardown() {
	r.sessionTeardowns.Inc()
}
