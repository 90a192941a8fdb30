package internal

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	signups         prometheus.Counter
	logins          prometheus.Counter
	syncs           *prometheus.CounterVec
	announcements   prometheus.Counter
	activeConns     prometheus.Gauge
	rosterSize      prometheus.Gauge
	globalCounter   prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		signups: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeeper_signups_total",
			Help: "Accounts created.",
		}),
		logins: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeeper_logins_total",
			Help: "Successful logins.",
		}),
		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeeper_syncs_total",
			Help: "Progress syncs by outcome.",
		}, []string{"outcome"}),
		announcements: factory.NewCounter(prometheus.CounterOpts{
			Name: "timekeeper_presence_announcements_total",
			Help: "Presence announcements accepted.",
		}),
		activeConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timekeeper_active_connections",
			Help: "Open realtime connections.",
		}),
		rosterSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timekeeper_roster_size",
			Help: "Distinct identities in the last broadcast roster.",
		}),
		globalCounter: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timekeeper_global_counter_seconds",
			Help: "Current global elapsed-time counter.",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timekeeper_http_requests_total",
			Help: "HTTP requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timekeeper_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) IncSignup() {
	m.signups.Inc()
}

func (m *Metrics) IncLogin() {
	m.logins.Inc()
}

func (m *Metrics) IncSync(outcome string) {
	m.syncs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAnnouncement() {
	m.announcements.Inc()
}

func (m *Metrics) IncConn() {
	m.activeConns.Inc()
}

func (m *Metrics) DecConn() {
	m.activeConns.Dec()
}

func (m *Metrics) SetRosterSize(n int) {
	m.rosterSize.Set(float64(n))
}

func (m *Metrics) SetGlobalCounter(value int64) {
	m.globalCounter.Set(float64(value))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware records request counts and durations per path. The websocket
// path is passed through untouched because the upgrader needs the raw writer.
func (m *Metrics) Middleware(wsPath string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == wsPath {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.requestsTotal.WithLabelValues(r.URL.Path, statusBucket(sw.status)).Inc()
		m.requestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
