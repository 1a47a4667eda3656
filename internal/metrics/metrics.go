package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the API server records into. A fresh
// registry per instance keeps tests independent.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ipTransitions   *prometheus.CounterVec
	conflictsFound  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipamd",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ipamd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ipTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipamd",
			Name:      "ip_transitions_total",
			Help:      "Address lifecycle transitions by action and outcome.",
		}, []string{"action", "outcome"}),
		conflictsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipamd",
			Name:      "ip_conflicts_detected_total",
			Help:      "Address records moved to the conflict state.",
		}),
	}
	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.ipTransitions, m.conflictsFound)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTransition(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ipTransitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) AddConflicts(n int) {
	if n > 0 {
		m.conflictsFound.Add(float64(n))
	}
}
