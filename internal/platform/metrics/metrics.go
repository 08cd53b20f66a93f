package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the pipeline.
// Every method is a no-op on a nil *Metrics so tests can omit it.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	ingestTotal       *prometheus.CounterVec
	broadcastsTotal   *prometheus.CounterVec
	subscriberDrops   prometheus.Counter
	sessionsPurged    prometheus.Counter
	latency           prometheus.Histogram
	activeSessions    prometheus.Gauge
	activeSubscribers prometheus.Gauge
}

// New creates and registers Prometheus metrics for the pipeline.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsl_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsl_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsl_ingest_total",
			Help: "Ingest messages by update type and outcome",
		}, []string{"type", "outcome"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsl_broadcasts_total",
			Help: "Messages fanned out to subscribers by kind",
		}, []string{"kind"}),
		subscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsl_subscriber_drops_total",
			Help: "Subscribers disconnected after a failed or stalled delivery",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsl_sessions_purged_total",
			Help: "Sessions removed by the idle sweep",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsl_end_to_end_latency_ms",
			Help:    "Origin timestamp to fanout completion, milliseconds",
			Buckets: []float64{50, 100, 200, 400, 800, 1600},
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsl_active_sessions",
			Help: "Sessions currently held in memory",
		}),
		activeSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsl_active_subscribers",
			Help: "Connected timeline subscribers",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.ingestTotal,
		m.broadcastsTotal,
		m.subscriberDrops,
		m.sessionsPurged,
		m.latency,
		m.activeSessions,
		m.activeSubscribers,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncIngest counts one ingest message. updateType is "partial", "final" or
// "unknown"; outcome is the terminal pipeline state (e.g. "acked", "rejected").
func (m *Metrics) IncIngest(updateType, outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(updateType, outcome).Inc()
}

// IncBroadcast counts one fanout of the given message kind.
func (m *Metrics) IncBroadcast(kind string) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(kind).Inc()
}

// IncSubscriberDrops counts a subscriber removed by a delivery failure.
func (m *Metrics) IncSubscriberDrops() {
	if m == nil {
		return
	}
	m.subscriberDrops.Inc()
}

// AddSessionsPurged adds n purged sessions.
func (m *Metrics) AddSessionsPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsPurged.Add(float64(n))
}

// ObserveLatency records an end-to-end latency sample in milliseconds.
func (m *Metrics) ObserveLatency(ms float64) {
	if m == nil {
		return
	}
	m.latency.Observe(ms)
}

// SetActiveSessions sets the sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SetActiveSubscribers sets the subscribers gauge.
func (m *Metrics) SetActiveSubscribers(n int) {
	if m == nil {
		return
	}
	m.activeSubscribers.Set(float64(n))
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
