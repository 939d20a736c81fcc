// Package metrics defines the Prometheus collectors exported by riskview.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	snapshotFetches *prometheus.CounterVec
	staleResponses  *prometheus.CounterVec
	derivedCache    *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors under namespace and registers them on a fresh registry.
func New(namespace string) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Requests sent to the statistics service, by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of statistics service requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		snapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fetches_total",
			Help:      "Snapshot fetches per view, by outcome.",
		}, []string{"view", "outcome"}),
		staleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Fetch responses discarded because a newer fetch had already been applied.",
		}, []string{"view"}),
		derivedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derived_view_cache_total",
			Help:      "Derived view cache lookups, by result.",
		}, []string{"result"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events.",
		}, []string{"event"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
	}

	if err := m.Register(m.registry); err != nil {
		return nil, err
	}
	return m, nil
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.backendRequests,
		m.backendLatency,
		m.snapshotFetches,
		m.staleResponses,
		m.derivedCache,
		m.sessionEvents,
		m.httpRequests,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBackend records one statistics service call. code is 0 on transport failure.
func (m *Metrics) ObserveBackend(endpoint string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.backendLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveFetch records a snapshot fetch outcome: applied, stale or error.
func (m *Metrics) ObserveFetch(view, outcome string) {
	if m == nil {
		return
	}
	m.snapshotFetches.WithLabelValues(view, outcome).Inc()
	if outcome == "stale" {
		m.staleResponses.WithLabelValues(view).Inc()
	}
}

// ObserveDerived records a derived view cache lookup.
func (m *Metrics) ObserveDerived(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.derivedCache.WithLabelValues("hit").Inc()
		return
	}
	m.derivedCache.WithLabelValues("miss").Inc()
}

// ObserveSession records a session lifecycle event.
func (m *Metrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
