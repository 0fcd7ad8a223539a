package usecase

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
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/performance"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

type mockRecorder struct {
	mu      sync.Mutex
	samples []entity.Sample
}

func (m *mockRecorder) RecordSample(s entity.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *mockRecorder) byName() map[string]entity.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]entity.Sample, len(m.samples))
	for _, s := range m.samples {
		out[s.Name()] = s
	}
	return out
}

type mockSource struct {
	metrics []port.RawMetric
	err     error
}

func (m *mockSource) CollectAll(context.Context) ([]port.RawMetric, error) {
	return m.metrics, m.err
}

type mockNotifier struct {
	snapshots []*dto.SystemSnapshotDTO
}

func (m *mockNotifier) Broadcast(s *dto.SystemSnapshotDTO) { m.snapshots = append(m.snapshots, s) }
func (m *mockNotifier) BroadcastAlert(*dto.AlertDTO) {}
func (m *mockNotifier) ClientCount() int { return 1 }

func TestCollectMetricsUseCase_FiltersAndBroadcasts(t *testing.T) {
	source := &mockSource{metrics: []port.RawMetric{
		{Name: "system.cpu.usage_percent", Kind: valueobject.Gauge, Value: 95, Unit: "%"},
		{Name: "system.memory.usage_percent", Kind: valueobject.Gauge, Value: 140, Unit: "%"},
		{Name: "bad name", Kind: valueobject.Gauge, Value: 1},
		{Name: "", Kind: valueobject.Gauge, Value: 1},
		{Name: "system.disk.free_bytes", Kind: valueobject.Gauge, Value: 1024, Unit: "bytes"},
	}}
	recorder := &mockRecorder{}
	notifier := &mockNotifier{}

	uc := NewCollectMetricsUseCase(source, recorder, notifier, nil, logger.New("error"))
	if err := uc.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := recorder.byName()
	if len(got) != 2 {
		t.Fatalf("expected 2 recorded samples, got %d", len(got))
	}
	if _, ok := got["system.memory.usage_percent"]; ok {
		t.Error("percent above 100 must be dropped")
	}

	if len(notifier.snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(notifier.snapshots))
	}
	snap := notifier.snapshots[0]
	if snap.Summary.TotalMetrics != 2 || snap.Summary.OverallStatus != "critical" {
		t.Errorf("unexpected summary: %+v", snap.Summary)
	}
}

func TestCollectMetricsUseCase_SourceError(t *testing.T) {
	recorder := &mockRecorder{}
	uc := NewCollectMetricsUseCase(&mockSource{err: errors.New("boom")}, recorder, nil, nil, logger.New("error"))

	if err := uc.Execute(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(recorder.samples) != 0 {
		t.Error("nothing must be recorded on error")
	}
}

func TestCheckDependencyHealthUseCase(t *testing.T) {
	probes := []port.DependencyProbe{
		port.ProbeFunc{ProbeName: "redis", Fn: func(context.Context) error { return errors.New("refused") }},
		port.ProbeFunc{ProbeName: "database", Fn: func(context.Context) error { return nil }},
	}
	recorder := &mockRecorder{}

	uc := NewCheckDependencyHealthUseCase(probes, recorder, CheckDependencyHealthConfig{DatabaseProbe: "database"}, logger.New("error"))
	statuses := uc.Execute(context.Background())

	if len(statuses) != 2 || statuses[0].Name != "database" || statuses[1].Name != "redis" {
		t.Fatalf("expected statuses sorted by name, got %+v", statuses)
	}
	if !statuses[0].Up || statuses[1].Up || statuses[1].Error != "refused" {
		t.Errorf("unexpected statuses: %+v", statuses)
	}

	got := recorder.byName()
	if s, ok := got["dependency.redis.up"]; !ok || s.Value() != 0 {
		t.Errorf("expected dependency.redis.up=0, got %v", s)
	}
	if s, ok := got["dependency.database.up"]; !ok || s.Value() != 1 {
		t.Errorf("expected dependency.database.up=1, got %v", s)
	}
	if s, ok := got[DatabaseHealthMetric]; !ok || s.Kind() != valueobject.Timer {
		t.Errorf("expected %s timer, got %v", DatabaseHealthMetric, s)
	}
	if _, ok := got["dependency.redis.response_time"]; !ok {
		t.Error("expected response time for failed probe")
	}
}

func TestCheckDependencyHealthUseCase_Timeout(t *testing.T) {
	slow := port.ProbeFunc{ProbeName: "nats", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	uc := NewCheckDependencyHealthUseCase([]port.DependencyProbe{slow}, &mockRecorder{},
		CheckDependencyHealthConfig{Timeout: 20 * time.Millisecond}, logger.New("error"))

	statuses := uc.Execute(context.Background())
	if statuses[0].Up {
		t.Fatal("probe exceeding timeout must be down")
	}
}

func TestMetricSegment(t *testing.T) {
	if got := metricSegment("Sink:Postgres"); got != "sink_postgres" {
		t.Errorf("metricSegment() = %q", got)
	}
}

type mockStats struct {
	stats map[string]performance.OperationStats
}

func (m *mockStats) GetPerformanceStats(string, time.Duration) map[string]performance.OperationStats {
	return m.stats
}

func TestCollectPerformanceMetricsUseCase(t *testing.T) {
	stats := &mockStats{stats: map[string]performance.OperationStats{
		"checkout": {Operation: "checkout", ErrorRate: 12.5, P95Duration: 340},
	}}
	recorder := &mockRecorder{}

	uc := NewCollectPerformanceMetricsUseCase(stats, recorder, 0, logger.New("error"))
	if err := uc.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := recorder.byName()
	if s := got["performance.checkout.error_rate"]; s.Value() != 12.5 || s.Unit() != "%" {
		t.Errorf("unexpected error_rate sample: %v", s)
	}
	if s := got["performance.checkout.p95"]; s.Value() != 340 || s.Unit() != "ms" {
		t.Errorf("unexpected p95 sample: %v", s)
	}
}

type mockHistory struct {
	samples []entity.Sample
	err     error
	calls   int
}

func (m *mockHistory) GetHistory(context.Context, string, valueobject.TimeRange, int) ([]entity.Sample, error) {
	m.calls++
	return m.samples, m.err
}

// mockCache хранит значения как есть; Get копирует через dto-указатель
type mockCache struct {
	data   map[string]dto.SampleHistoryDTO
	getErr error
	sets   int
}

func (m *mockCache) Get(_ context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return port.ErrCacheMiss
	}
	*dest.(*dto.SampleHistoryDTO) = v
	return nil
}

func (m *mockCache) Set(_ context.Context, key string, value interface{}) error {
	m.sets++
	m.data[key] = *value.(*dto.SampleHistoryDTO)
	return nil
}

func (m *mockCache) Delete(context.Context, string) error { return nil }
func (m *mockCache) DeletePattern(context.Context, string) error { return nil }
func (m *mockCache) Ping(context.Context) error { return nil }
func (m *mockCache) Close() error { return nil }

func historySamples(t *testing.T, values ...float64) []entity.Sample {
	t.Helper()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	out := make([]entity.Sample, len(values))
	for i, v := range values {
		s, err := entity.NewSample("api.latency", valueobject.Timer, v, "ms", nil, base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("NewSample() error = %v", err)
		}
		out[i] = s
	}
	return out
}

func TestGetHistoricalSamplesUseCase_CachesResult(t *testing.T) {
	source := &mockHistory{samples: historySamples(t, 10, 20, 30, 40, 50)}
	cache := &mockCache{data: make(map[string]dto.SampleHistoryDTO)}
	uc := NewGetHistoricalSamplesUseCase(source, cache, logger.New("error"))

	from := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tr, _ := valueobject.NewTimeRange(from, from.Add(time.Hour))

	first, err := uc.Execute(context.Background(), "api.latency", tr, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if first.Cached || first.Count != 5 || first.Average != 30 || first.Min != 10 || first.Max != 50 || first.P95 != 50 {
		t.Errorf("unexpected history: %+v", first)
	}

	second, err := uc.Execute(context.Background(), "api.latency", tr, 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !second.Cached {
		t.Error("second call must be served from cache")
	}
	if source.calls != 1 || cache.sets != 1 {
		t.Errorf("expected one sink call and one cache set, got %d and %d", source.calls, cache.sets)
	}
}

func TestGetHistoricalSamplesUseCase_Errors(t *testing.T) {
	uc := NewGetHistoricalSamplesUseCase(&mockHistory{err: errors.New("down")}, nil, logger.New("error"))

	if _, err := uc.Execute(context.Background(), "", valueobject.TimeRange{}, 0); !errors.Is(err, ErrInvalidHistoryQuery) {
		t.Errorf("expected ErrInvalidHistoryQuery, got %v", err)
	}

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, _ := valueobject.NewTimeRange(from, from.Add(time.Hour))
	if _, err := uc.Execute(context.Background(), "x", tr, 0); err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("expected wrapped sink error, got %v", err)
	}
}

func TestGetHistoricalSamplesUseCase_CacheFailureFallsBack(t *testing.T) {
	source := &mockHistory{samples: historySamples(t, 1)}
	cache := &mockCache{data: make(map[string]dto.SampleHistoryDTO), getErr: errors.New("timeout")}
	uc := NewGetHistoricalSamplesUseCase(source, cache, logger.New("error"))

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, _ := valueobject.NewTimeRange(from, from.Add(time.Hour))
	history, err := uc.Execute(context.Background(), "api.latency", tr, 0)
	if err != nil || history.Count != 1 {
		t.Fatalf("expected sink fallback, got %+v, %v", history, err)
	}
}

type mockExporter struct {
	err error
}

func (m *mockExporter) Export(names []string, _ time.Duration, _ valueobject.Interval, format string) ([]byte, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return []byte("timestamp," + strings.Join(names, ",")), "text/csv", nil
}

type mockExportStorage struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (m *mockExportStorage) PutObject(_ context.Context, key, contentType string, body []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.key, m.contentType, m.body = key, contentType, body
	return "https://exports.example.com/" + key, nil
}

func TestExportMetricsUseCase_Inline(t *testing.T) {
	uc := NewExportMetricsUseCase(&mockExporter{}, nil, logger.New("error"))

	data, result, err := uc.Execute(context.Background(), ExportRequest{Names: []string{"a", "b"}, Format: " CSV "})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(data) != "timestamp,a,b" || result.Format != "csv" || result.Size != len(data) || result.URL != "" {
		t.Errorf("unexpected result: %q %+v", data, result)
	}

	if _, _, err := uc.Execute(context.Background(), ExportRequest{Upload: true}); !errors.Is(err, ErrExportStorageDisabled) {
		t.Errorf("expected ErrExportStorageDisabled, got %v", err)
	}
}

func TestExportMetricsUseCase_Upload(t *testing.T) {
	storage := &mockExportStorage{}
	uc := NewExportMetricsUseCase(&mockExporter{}, storage, logger.New("error"))
	uc.now = func() time.Time { return time.Date(2026, 2, 8, 9, 5, 0, 0, time.UTC) }

	data, result, err := uc.Execute(context.Background(), ExportRequest{Names: []string{"a"}, Format: "csv", Upload: true})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if data != nil {
		t.Error("uploaded export must not return the body")
	}
	if result.Key != "exports/2026/02/08/20260208T090500Z.csv" {
		t.Errorf("unexpected key %q", result.Key)
	}
	if result.URL != "https://exports.example.com/"+result.Key || storage.contentType != "text/csv" {
		t.Errorf("unexpected upload: %+v", result)
	}

	storage.err = errors.New("denied")
	if _, _, err := uc.Execute(context.Background(), ExportRequest{Format: "csv", Upload: true}); err == nil {
		t.Error("expected upload error")
	}
}
