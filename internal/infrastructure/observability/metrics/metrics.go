// Package metrics exposes the pipeline's own health as Prometheus collectors.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "telemetry"

// Metrics bundles prometheus collectors and implements port.SelfMetrics.
type Metrics struct {
	registry *prometheus.Registry

	SamplesRecorded     *prometheus.CounterVec
	SamplesEvicted      prometheus.Counter
	SinkWriteFailures   *prometheus.CounterVec
	SinkDropped         prometheus.Counter
	AlertsCreated       *prometheus.CounterVec
	AlertsResolved      *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	NotificationsAggr   prometheus.Counter
	CollectorRuns       *prometheus.CounterVec
	CollectorDuration   *prometheus.HistogramVec

	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		SamplesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_recorded_total",
			Help:      "Samples accepted by the in-memory store.",
		}, []string{"kind"}),
		SamplesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_evicted_total",
			Help:      "Samples evicted from the store by capacity.",
		}),
		SinkWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_write_failures_total",
			Help:      "Failed sink batch writes.",
		}, []string{"sink"}),
		SinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_samples_dropped_total",
			Help:      "Samples dropped because the sink queue was full.",
		}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts raised.",
		}, []string{"severity", "source"}),
		AlertsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Alerts resolved.",
		}, []string{"reason"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications delivered per channel.",
		}, []string{"channel"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notification delivery failures per channel.",
		}, []string{"channel"}),
		NotificationsAggr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_aggregated_total",
			Help:      "Alerts held back by notification aggregation.",
		}),
		CollectorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_runs_total",
			Help:      "Collector invocations by outcome.",
		}, []string{"collector", "result"}),
		CollectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collector_duration_seconds",
			Help:      "Collector run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collector"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_auth_failures_total",
			Help:      "Total number of auth failures.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_ratelimit_dropped_total",
			Help:      "Total number of requests dropped by rate limiter.",
		}),
	}

	registry.MustRegister(
		m.SamplesRecorded,
		m.SamplesEvicted,
		m.SinkWriteFailures,
		m.SinkDropped,
		m.AlertsCreated,
		m.AlertsResolved,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotificationsAggr,
		m.CollectorRuns,
		m.CollectorDuration,
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
	)

	return m
}

// WatchGauge registers a gauge evaluated on every scrape.
func (m *Metrics) WatchGauge(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) SampleRecorded(kind string) { m.SamplesRecorded.WithLabelValues(kind).Inc() }

func (m *Metrics) SampleEvicted() { m.SamplesEvicted.Inc() }

func (m *Metrics) SinkWriteFailed(sink string) { m.SinkWriteFailures.WithLabelValues(sink).Inc() }

func (m *Metrics) SinkSamplesDropped(n int) { m.SinkDropped.Add(float64(n)) }

func (m *Metrics) AlertCreated(severity, source string) {
	m.AlertsCreated.WithLabelValues(severity, source).Inc()
}

func (m *Metrics) AlertResolved(reason string) { m.AlertsResolved.WithLabelValues(reason).Inc() }

func (m *Metrics) NotificationSent(channel string) { m.NotificationsSent.WithLabelValues(channel).Inc() }

func (m *Metrics) NotificationFailed(channel string) {
	m.NotificationsFailed.WithLabelValues(channel).Inc()
}

func (m *Metrics) NotificationAggregated() { m.NotificationsAggr.Inc() }

func (m *Metrics) CollectorRun(name string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CollectorRuns.WithLabelValues(name, result).Inc()
	m.CollectorDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := r.Pattern
		if route == "" {
			route = normalizeRoute(r.URL.Path)
		}
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded when no mux pattern matched.
func normalizeRoute(path string) string {
	switch {
	case path == "/ws", path == "/healthz", path == "/readyz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/v1/analytics/"):
		return "/api/v1/analytics/*"
	case strings.HasPrefix(path, "/api/v1/"):
		rest := strings.TrimPrefix(path, "/api/v1/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if rest == "" {
			return "/api/v1/*"
		}
		return "/api/v1/" + rest
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
