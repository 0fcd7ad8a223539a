package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
)

var _ port.SelfMetrics = (*Metrics)(nil)

func TestSelfMetricsCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SampleRecorded("gauge")
	m.SampleRecorded("gauge")
	m.SampleEvicted()
	m.SinkWriteFailed("postgres")
	m.SinkSamplesDropped(3)
	m.AlertCreated("high", "threshold_monitor")
	m.AlertResolved("auto")
	m.NotificationSent("slack")
	m.NotificationFailed("email")
	m.NotificationAggregated()
	m.CollectorRun("system", 20*time.Millisecond, nil)
	m.CollectorRun("system", 10*time.Millisecond, errors.New("boom"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"samples", testutil.ToFloat64(m.SamplesRecorded.WithLabelValues("gauge")), 2},
		{"evicted", testutil.ToFloat64(m.SamplesEvicted), 1},
		{"sink failures", testutil.ToFloat64(m.SinkWriteFailures.WithLabelValues("postgres")), 1},
		{"sink dropped", testutil.ToFloat64(m.SinkDropped), 3},
		{"alerts", testutil.ToFloat64(m.AlertsCreated.WithLabelValues("high", "threshold_monitor")), 1},
		{"resolved", testutil.ToFloat64(m.AlertsResolved.WithLabelValues("auto")), 1},
		{"sent", testutil.ToFloat64(m.NotificationsSent.WithLabelValues("slack")), 1},
		{"failed", testutil.ToFloat64(m.NotificationsFailed.WithLabelValues("email")), 1},
		{"aggregated", testutil.ToFloat64(m.NotificationsAggr), 1},
		{"collector ok", testutil.ToFloat64(m.CollectorRuns.WithLabelValues("system", "ok")), 1},
		{"collector error", testutil.ToFloat64(m.CollectorRuns.WithLabelValues("system", "error")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestWatchGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if err := m.WatchGauge("store_samples", "Samples held in memory.", func() float64 { return 42 }); err != nil {
		t.Fatalf("WatchGauge() error = %v", err)
	}
	if err := m.WatchGauge("store_samples", "dup", func() float64 { return 0 }); err == nil {
		t.Error("expected duplicate registration error")
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "telemetry_store_samples" {
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 42 {
				t.Errorf("gauge = %v, want 42", v)
			}
			return
		}
	}
	t.Error("gauge not gathered")
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/resolve", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/alerts", http.MethodGet, "418")); got != 1 {
		t.Errorf("expected one request recorded, got %v", got)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/ws":                         "/ws",
		"/healthz":                    "/healthz",
		"/api/v1/analytics/histogram": "/api/v1/analytics/*",
		"/api/v1/metrics/history":     "/api/v1/metrics",
		"/api/v1/":                    "/api/v1/*",
		"/favicon.ico":                "other",
	}
	for path, want := range tests {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}
