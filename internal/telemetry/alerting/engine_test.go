package alerting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSamples struct {
	mu      sync.Mutex
	clock   *fakeClock
	samples []entity.Sample
}

func (f *fakeSamples) add(t *testing.T, name string, value float64, age time.Duration) {
	t.Helper()
	s, err := entity.NewSample(name, valueobject.Gauge, value, "%", nil, f.clock.Now().Add(-age))
	if err != nil {
		t.Fatalf("NewSample() error = %v", err)
	}
	f.mu.Lock()
	f.samples = append(f.samples, s)
	f.mu.Unlock()
}

func (f *fakeSamples) Query(nameFilter string, window time.Duration) []entity.Sample {
	tr := valueobject.WindowEndingAt(f.clock.Now(), window)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Sample
	for _, s := range f.samples {
		if strings.Contains(s.Name(), nameFilter) && tr.Contains(s.Timestamp()) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSamples) SamplesFor(name string, window time.Duration) []entity.Sample {
	var out []entity.Sample
	for _, s := range f.Query(name, window) {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []*dto.AlertDTO
}

func (d *recordingDispatcher) Dispatch(a *dto.AlertDTO) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, a)
	return true
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.alerts)
}

type fakeRates struct {
	rates map[string][2]float64
}

func (f fakeRates) Operations() []string {
	ops := make([]string, 0, len(f.rates))
	for op := range f.rates {
		ops = append(ops, op)
	}
	return ops
}

func (f fakeRates) ErrorRate(op string, _ int) (float64, int) {
	r := f.rates[op]
	return r[0], int(r[1])
}

type fakeArchive struct {
	mu      sync.Mutex
	stored  []entity.AlertSnapshot
	failErr error
}

func (a *fakeArchive) PutBatch(_ context.Context, alerts []entity.AlertSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return a.failErr
	}
	a.stored = append(a.stored, alerts...)
	return nil
}

func (a *fakeArchive) ListBySource(context.Context, string, time.Time, int) ([]entity.AlertSnapshot, error) {
	return nil, nil
}

type harness struct {
	clock      *fakeClock
	samples    *fakeSamples
	dispatcher *recordingDispatcher
	engine     *Engine
}

func newHarness(t *testing.T, rates ErrorRateSource, archive *fakeArchive) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	samples := &fakeSamples{clock: clock}
	dispatcher := &recordingDispatcher{}

	var arch port.AlertArchive
	if archive != nil {
		arch = archive
	}

	engine := NewEngine(Config{Now: clock.Now}, samples, rates, dispatcher, arch, nil, logger.New("error"))
	return &harness{clock: clock, samples: samples, dispatcher: dispatcher, engine: engine}
}

func cpuRule(confirm time.Duration) entity.ThresholdRule {
	return entity.ThresholdRule{
		MetricName:      "system.cpu.usage_percent",
		Operator:        valueobject.GreaterOrEqual,
		Threshold:       80,
		ConfirmDuration: confirm,
		Severity:        valueobject.SeverityHigh,
		Enabled:         true,
	}
}

func TestEvaluateDurationConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		wantAlert bool
	}{
		{"75 percent violating is not enough", []float64{90, 50, 90, 90}, false},
		{"80 percent violating confirms", []float64{90, 50, 90, 90, 90}, true},
		{"single point cannot confirm", []float64{95}, false},
		{"latest value ok", []float64{90, 90, 90, 90, 50}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, nil)
			if _, err := h.engine.AddRule(cpuRule(5 * time.Minute)); err != nil {
				t.Fatalf("AddRule() error = %v", err)
			}
			for i, v := range tt.values {
				age := time.Duration(len(tt.values)-1-i) * 30 * time.Second
				h.samples.add(t, "system.cpu.usage_percent", v, age)
			}

			raised, err := h.engine.Evaluate(context.Background())
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got := raised == 1; got != tt.wantAlert {
				t.Fatalf("raised = %d, want alert %v", raised, tt.wantAlert)
			}
		})
	}
}

func TestEvaluateIgnoresSamplesOutsideConfirmWindow(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, _ = h.engine.AddRule(cpuRule(5 * time.Minute))

	h.samples.add(t, "system.cpu.usage_percent", 95, 20*time.Minute)
	h.samples.add(t, "system.cpu.usage_percent", 95, 0)

	if raised, _ := h.engine.Evaluate(context.Background()); raised != 0 {
		t.Fatalf("only one sample inside the window, got %d alerts", raised)
	}
}

func TestEvaluateImmediateRuleAndMetadata(t *testing.T) {
	h := newHarness(t, nil, nil)
	id, _ := h.engine.AddRule(cpuRule(0))
	h.samples.add(t, "system.cpu.usage_percent", 97, 0)

	if raised, _ := h.engine.Evaluate(context.Background()); raised != 1 {
		t.Fatalf("expected immediate alert, got %d", raised)
	}

	alerts := h.engine.Alerts(Filter{})
	if len(alerts) != 1 {
		t.Fatalf("expected 1 stored alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Source != SourceThreshold || a.Severity != valueobject.SeverityHigh {
		t.Errorf("unexpected alert source/severity %s/%s", a.Source, a.Severity)
	}
	if a.Metadata["rule_id"] != id || a.Metadata["current_value"] != 97.0 || a.Metadata["operator"] != ">=" {
		t.Errorf("unexpected metadata %v", a.Metadata)
	}
	if h.dispatcher.count() != 1 {
		t.Errorf("expected alert to be dispatched once, got %d", h.dispatcher.count())
	}
}

func TestSuppressionWindow(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, _ = h.engine.AddRule(cpuRule(0))
	h.samples.add(t, "system.cpu.usage_percent", 90, 0)

	ctx := context.Background()
	first, _ := h.engine.Evaluate(ctx)
	h.clock.Advance(10 * time.Minute)
	h.samples.add(t, "system.cpu.usage_percent", 91, 0)
	second, _ := h.engine.Evaluate(ctx)
	h.clock.Advance(6 * time.Minute)
	h.samples.add(t, "system.cpu.usage_percent", 92, 0)
	third, _ := h.engine.Evaluate(ctx)

	if first != 1 || second != 0 || third != 1 {
		t.Fatalf("raised %d/%d/%d, want 1/0/1", first, second, third)
	}
}

func TestDisabledRuleIsSkipped(t *testing.T) {
	h := newHarness(t, nil, nil)
	rule := cpuRule(0)
	rule.Enabled = false
	_, _ = h.engine.AddRule(rule)
	h.samples.add(t, "system.cpu.usage_percent", 99, 0)

	if raised, _ := h.engine.Evaluate(context.Background()); raised != 0 {
		t.Fatalf("disabled rule must not fire, got %d", raised)
	}
}

func TestRuleRegistry(t *testing.T) {
	h := newHarness(t, nil, nil)

	id1, err := h.engine.AddRule(cpuRule(time.Minute))
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
	id2, _ := h.engine.AddRule(cpuRule(2 * time.Minute))
	if id1 != id2 {
		t.Fatalf("identical rule must keep id, got %s and %s", id1, id2)
	}
	if rules := h.engine.Rules(); len(rules) != 1 || rules[0].ConfirmDuration != 2*time.Minute {
		t.Fatalf("expected rule to be replaced, got %+v", rules)
	}

	if _, err := h.engine.AddRule(entity.ThresholdRule{MetricName: "x", Operator: "=>", Severity: valueobject.SeverityLow}); !errors.Is(err, entity.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}

	if !h.engine.RemoveRule(id1) || h.engine.RemoveRule(id1) {
		t.Fatal("RemoveRule must succeed once")
	}
}

func TestResolveAlertIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	snap, err := h.engine.CreateAlert(valueobject.SeverityMedium, "Manual", "check it", "", nil)
	if err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}
	if snap.Source != SourceManual {
		t.Errorf("expected default source %q, got %q", SourceManual, snap.Source)
	}

	if !h.engine.ResolveAlert(snap.ID, "fixed") {
		t.Fatal("first resolve must succeed")
	}
	first, _ := h.engine.Alert(snap.ID)

	h.clock.Advance(time.Minute)
	if !h.engine.ResolveAlert(snap.ID, "again") {
		t.Fatal("second resolve must return true")
	}
	second, _ := h.engine.Alert(snap.ID)

	if !second.ResolvedAt.Equal(*first.ResolvedAt) || second.ResolutionNote != "fixed" {
		t.Fatalf("resolution must not change, got %v %q", second.ResolvedAt, second.ResolutionNote)
	}
	if h.engine.ResolveAlert("missing", "") {
		t.Fatal("unknown id must return false")
	}
}

func TestErrorRateAlerts(t *testing.T) {
	rates := fakeRates{rates: map[string][2]float64{
		"api.checkout": {12.5, 40},
		"api.search":   {50, 5},
		"api.login":    {4, 100},
	}}
	h := newHarness(t, rates, nil)

	raised, err := h.engine.EvaluateErrorRates(context.Background())
	if err != nil || raised != 1 {
		t.Fatalf("EvaluateErrorRates() = %d, %v; want 1", raised, err)
	}
	alerts := h.engine.Alerts(Filter{Source: SourcePerformance})
	if len(alerts) != 1 || alerts[0].Severity != valueobject.SeverityHigh {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if !h.engine.IsSuppressed("error_rate_api.checkout") {
		t.Fatal("expected error rate key to be suppressed")
	}
	if again, _ := h.engine.EvaluateErrorRates(context.Background()); again != 0 {
		t.Fatalf("suppressed operation raised %d alerts", again)
	}
}

func TestAlertLifecycle(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, _ = h.engine.AddRule(cpuRule(0))
	ctx := context.Background()

	h.samples.add(t, "system.cpu.usage_percent", 95, 0)
	if raised, _ := h.engine.Evaluate(ctx); raised != 1 {
		t.Fatalf("expected alert, got %d", raised)
	}

	h.clock.Advance(30 * time.Minute)
	h.samples.add(t, "system.cpu.usage_percent", 40, 0)
	if n := h.engine.AutoResolve(ctx); n != 0 {
		t.Fatalf("alert younger than auto-resolve age must stay open, resolved %d", n)
	}

	h.clock.Advance(31 * time.Minute)
	h.samples.add(t, "system.cpu.usage_percent", 35, 0)
	if n := h.engine.AutoResolve(ctx); n != 1 {
		t.Fatalf("expected 1 auto-resolved alert, got %d", n)
	}

	alerts := h.engine.Alerts(Filter{})
	if len(alerts) != 1 || !alerts[0].Resolved || alerts[0].ResolutionNote != AutoResolveNote {
		t.Fatalf("unexpected alert state %+v", alerts)
	}
	if active := h.engine.Alerts(Filter{ActiveOnly: true}); len(active) != 0 {
		t.Fatalf("expected no active alerts, got %d", len(active))
	}
}

func TestAutoResolveKeepsViolatingAlert(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, _ = h.engine.AddRule(cpuRule(0))
	h.samples.add(t, "system.cpu.usage_percent", 95, 0)
	_, _ = h.engine.Evaluate(context.Background())

	h.clock.Advance(2 * time.Hour)
	h.samples.add(t, "system.cpu.usage_percent", 96, 0)
	if n := h.engine.AutoResolve(context.Background()); n != 0 {
		t.Fatalf("still violating alert must not resolve, got %d", n)
	}
}

func TestManualAlertsAreNotAutoResolved(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, _ = h.engine.CreateAlert(valueobject.SeverityLow, "note", "", "operator", nil)
	h.clock.Advance(3 * time.Hour)

	if n := h.engine.AutoResolve(context.Background()); n != 0 {
		t.Fatalf("manual alert must not auto-resolve, got %d", n)
	}
}

func TestAlertsFilterAndOrder(t *testing.T) {
	h := newHarness(t, nil, nil)
	old, _ := h.engine.CreateAlert(valueobject.SeverityLow, "old", "", "a", nil)
	h.clock.Advance(2 * time.Hour)
	_, _ = h.engine.CreateAlert(valueobject.SeverityCritical, "mid", "", "b", nil)
	h.clock.Advance(time.Minute)
	newest, _ := h.engine.CreateAlert(valueobject.SeverityCritical, "new", "", "b", nil)

	all := h.engine.Alerts(Filter{})
	if len(all) != 3 || all[0].ID != newest.ID || all[2].ID != old.ID {
		t.Fatalf("expected newest first, got %v", all)
	}
	if recent := h.engine.Alerts(Filter{Window: time.Hour}); len(recent) != 2 {
		t.Fatalf("expected 2 alerts in the last hour, got %d", len(recent))
	}
	if crit := h.engine.Alerts(Filter{Severity: valueobject.SeverityCritical, Limit: 1}); len(crit) != 1 || crit[0].ID != newest.ID {
		t.Fatalf("unexpected filtered result %v", crit)
	}

	st := h.engine.Statistics()
	if st.Total != 3 || st.Active != 3 || st.BySeverity["critical"] != 2 || st.LastHour != 2 {
		t.Fatalf("unexpected statistics %+v", st)
	}
}

func TestCleanupArchivesExpiredAlerts(t *testing.T) {
	archive := &fakeArchive{}
	h := newHarness(t, nil, archive)

	resolved, _ := h.engine.CreateAlert(valueobject.SeverityLow, "done", "", "x", nil)
	open, _ := h.engine.CreateAlert(valueobject.SeverityLow, "open", "", "x", nil)
	h.engine.ResolveAlert(resolved.ID, "ok")

	h.clock.Advance(25 * time.Hour)
	removed, err := h.engine.Cleanup(context.Background(), h.clock.Now())
	if err != nil || removed != 1 {
		t.Fatalf("Cleanup() = %d, %v; want 1", removed, err)
	}
	if len(archive.stored) != 1 || archive.stored[0].ID != resolved.ID {
		t.Fatalf("expected resolved alert archived, got %v", archive.stored)
	}
	if _, ok := h.engine.Alert(open.ID); !ok {
		t.Fatal("open alerts must survive cleanup")
	}
}

func TestCleanupReportsArchiveFailure(t *testing.T) {
	archive := &fakeArchive{failErr: errors.New("table unavailable")}
	h := newHarness(t, nil, archive)
	a, _ := h.engine.CreateAlert(valueobject.SeverityLow, "done", "", "x", nil)
	h.engine.ResolveAlert(a.ID, "")
	h.clock.Advance(48 * time.Hour)

	if _, err := h.engine.Cleanup(context.Background(), h.clock.Now()); err == nil {
		t.Fatal("expected archive error")
	}
}

func TestTickRunsHousekeepingAndRecoversPanics(t *testing.T) {
	h := newHarness(t, nil, nil)
	calls := 0
	h.engine.AddHousekeeping(func(context.Context, time.Time) error {
		calls++
		return nil
	})
	if err := h.engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected housekeeping to run once, got %d", calls)
	}

	h.engine.AddHousekeeping(func(context.Context, time.Time) error {
		panic("boom")
	})
	if err := h.engine.Tick(context.Background()); err == nil {
		t.Fatal("expected panic to be reported as error")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	h.engine.Start(ctx)
	h.engine.Start(ctx)
	if !h.engine.Running() {
		t.Fatal("expected engine to be running")
	}
	if !h.engine.Stop(time.Second) || !h.engine.Stop(time.Second) {
		t.Fatal("Stop() must succeed and be idempotent")
	}
	if h.engine.Running() {
		t.Fatal("expected engine to be stopped")
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	rules := DefaultRules(Thresholds{CPUPercent: 80, MemoryPercent: 85, DiskPercent: 90, ResponseTimeMs: 3000, DatabaseResponseMs: 1000})
	if len(rules) != 5 {
		t.Fatalf("expected 5 default rules, got %d", len(rules))
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			t.Errorf("rule %s invalid: %v", r.ID(), err)
		}
	}
}
