package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/alerting"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

type memorySink struct {
	mu      sync.Mutex
	samples []entity.Sample
	pingErr error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) WriteBatch(_ context.Context, samples []entity.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, samples...)
	return nil
}

func (s *memorySink) Ping(context.Context) error { return s.pingErr }

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

type recordingChannel struct {
	mu     sync.Mutex
	alerts []*dto.AlertDTO
}

func (c *recordingChannel) Kind() entity.ChannelKind { return entity.ChannelDashboard }

func (c *recordingChannel) Send(_ context.Context, a *dto.AlertDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func newTestPipeline(t *testing.T, sink *memorySink, probes ...port.DependencyProbe) *Pipeline {
	t.Helper()
	opts := Options{Probes: probes}
	if sink != nil {
		opts.Sink = sink
	}
	p := New(opts, logger.New("error"))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

func TestIngestionAndQuery(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(t, sink)

	p.Increment("http.requests", map[string]string{"route": "/"})
	p.RecordCounter("http.requests", 4, nil)
	p.RecordGauge("system.cpu.usage_percent", 42, "%", nil)
	p.RecordTimer("db.query", 12, nil)
	p.RecordHistogram("payload.size", 512, "bytes", nil)
	p.RecordGauge("", 1, "", nil)

	if got := p.GetMetrics("http", 0); len(got) != 2 {
		t.Fatalf("expected 2 http samples, got %d", len(got))
	}
	if got := p.GetMetrics("", time.Hour); len(got) != 5 {
		t.Fatalf("invalid sample must be rejected, got %d samples", len(got))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if sink.count() != 5 {
		t.Fatalf("expected sink to receive 5 samples after drain, got %d", sink.count())
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestTrackPerformanceFeedsStoreAndStats(t *testing.T) {
	p := newTestPipeline(t, nil)
	for _, d := range []float64{10, 20, 30, 40, 50} {
		p.TrackPerformance("checkout", d, true, nil)
	}

	st := p.GetPerformanceStats("checkout", time.Hour)["checkout"]
	if st.TotalCount != 5 || st.P95Duration != 50 || st.P99Duration != 50 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if got := p.GetMetrics("performance.checkout", time.Hour); len(got) != 5 {
		t.Fatalf("expected 5 timer samples, got %d", len(got))
	}
}

func TestThresholdAlertReachesChannel(t *testing.T) {
	p := newTestPipeline(t, nil)
	ch := &recordingChannel{}
	if err := p.RegisterChannel("dashboard", ch, entity.NewChannelConfig(entity.ChannelDashboard, true, nil)); err != nil {
		t.Fatalf("RegisterChannel() error = %v", err)
	}

	id, err := p.AddThresholdRule(entity.ThresholdRule{
		MetricName: "queue.depth",
		Operator:   valueobject.GreaterThan,
		Threshold:  100,
		Severity:   valueobject.SeverityCritical,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("AddThresholdRule() error = %v", err)
	}

	p.RecordGauge("queue.depth", 250, "", nil)
	if err := p.Engine().Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	alerts := p.GetAlerts(alerting.Filter{ActiveOnly: true})
	if len(alerts) != 1 || alerts[0].Metadata["rule_id"] != id {
		t.Fatalf("expected one active threshold alert, got %+v", alerts)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ch.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ch.count() != 1 {
		t.Fatalf("expected alert delivered to channel, got %d", ch.count())
	}

	if !p.ResolveAlert(alerts[0].ID, "drained") {
		t.Fatal("ResolveAlert() = false")
	}
	if st := p.AlertStatistics(); st.Resolved != 1 || st.Active != 0 {
		t.Fatalf("unexpected statistics %+v", st.Statistics)
	}
	if !p.RemoveThresholdRule(id) {
		t.Fatal("RemoveThresholdRule() = false")
	}
}

func TestCreateAlertRejectsInvalidSeverity(t *testing.T) {
	p := newTestPipeline(t, nil)
	if id := p.CreateAlert("urgent", "x", "", "", nil); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
	if id := p.CreateAlert(valueobject.SeverityLow, "x", "", "", nil); id == "" {
		t.Fatal("expected alert id")
	}
}

func TestHealthReportsDegradedSink(t *testing.T) {
	sink := &memorySink{pingErr: errors.New("connection refused")}
	cache := port.ProbeFunc{ProbeName: "cache", Fn: func(context.Context) error { return nil }}
	p := newTestPipeline(t, sink, cache)

	report := p.Health(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Components["sink:memory"].Error != "connection refused" {
		t.Errorf("unexpected sink health %+v", report.Components["sink:memory"])
	}
	if report.Components["cache"].Status != StatusHealthy {
		t.Errorf("unexpected cache health %+v", report.Components["cache"])
	}

	sink.pingErr = nil
	if report := p.Health(context.Background()); report.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", report.Status)
	}
}

func TestPanicsAreRecovered(t *testing.T) {
	boom := port.ProbeFunc{ProbeName: "broken", Fn: func(context.Context) error { panic("boom") }}
	p := newTestPipeline(t, nil, boom)

	_ = p.Health(context.Background())

	if got := p.GetMetrics(errorMetric, time.Hour); len(got) != 1 || got[0].Tags["component"] != "health" {
		t.Fatalf("expected pipeline.errors sample, got %+v", got)
	}
}

func TestSystemOverviewStatus(t *testing.T) {
	tests := []struct {
		active int
		want   string
	}{
		{0, StatusHealthy},
		{1, StatusWarning},
		{5, StatusWarning},
		{6, StatusCritical},
	}
	for _, tt := range tests {
		if got := overviewStatus(tt.active); got != tt.want {
			t.Errorf("overviewStatus(%d) = %s, want %s", tt.active, got, tt.want)
		}
	}

	p := newTestPipeline(t, nil)
	p.RecordGauge("system.memory.usage_percent", 61, "%", nil)
	p.RecordGauge("app.goroutines", 12, "", nil)
	p.CreateAlert(valueobject.SeverityMedium, "disk", "", "", nil)

	ov := p.SystemOverview()
	if ov.Status != StatusWarning || ov.ActiveAlerts != 1 {
		t.Fatalf("unexpected overview status %s/%d", ov.Status, ov.ActiveAlerts)
	}
	if ov.SystemMetrics["system.memory.usage_percent"] != 61 {
		t.Fatalf("unexpected system metrics %v", ov.SystemMetrics)
	}
	if _, ok := ov.SystemMetrics["app.goroutines"]; ok {
		t.Fatal("non-system metrics must not appear in system metrics")
	}
}

func TestLifecycleIsIdempotent(t *testing.T) {
	p := newTestPipeline(t, nil)
	_ = p.RegisterCollector("noop", func(context.Context) error { return nil }, time.Hour)

	p.StartCollection()
	p.StartCollection()
	p.StartBackgroundTasks(context.Background())
	p.StartBackgroundTasks(context.Background())
	if !p.SystemOverview().MonitoringActive || !p.SystemOverview().BackgroundTasks {
		t.Fatal("expected collection and background tasks to be running")
	}

	p.StopCollection()
	p.StopCollection()
	p.StopBackgroundTasks()
	p.StopBackgroundTasks()
	if p.SystemOverview().MonitoringActive {
		t.Fatal("expected collection stopped")
	}
}

func TestGetHistoryWithoutSink(t *testing.T) {
	p := newTestPipeline(t, nil)
	if _, err := p.GetHistory(context.Background(), "cpu", valueobject.WindowEndingAt(time.Now(), time.Hour), 10); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("expected ErrHistoryUnavailable, got %v", err)
	}
}
