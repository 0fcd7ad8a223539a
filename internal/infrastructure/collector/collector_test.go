package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

func TestNetworkCollectorReportsDeltas(t *testing.T) {
	readings := [][]net.IOCountersStat{
		{{Name: "all", BytesSent: 1000, BytesRecv: 5000}},
		{{Name: "all", BytesSent: 1500, BytesRecv: 5200}},
		{{Name: "all", BytesSent: 10, BytesRecv: 20}},
	}
	call := 0
	c := NewNetworkCollector()
	c.counters = func(context.Context) ([]net.IOCountersStat, error) {
		r := readings[call]
		call++
		return r, nil
	}

	first, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(first) != 0 {
		t.Fatalf("first call must only record a baseline, got %d metrics", len(first))
	}

	second, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(second))
	}
	want := map[string]float64{"system.network.bytes_sent": 500, "system.network.bytes_recv": 200}
	for _, m := range second {
		if m.Kind != valueobject.Counter {
			t.Errorf("%s: expected counter kind, got %s", m.Name, m.Kind)
		}
		if m.Value != want[m.Name] {
			t.Errorf("%s = %v, want %v", m.Name, m.Value, want[m.Name])
		}
	}

	reset, _ := c.Collect(context.Background())
	if len(reset) != 0 {
		t.Errorf("counter reset must skip a round, got %d metrics", len(reset))
	}
}

func TestCollectParallelTolerantToPartialFailure(t *testing.T) {
	ok := func(context.Context) ([]port.RawMetric, error) {
		return []port.RawMetric{gauge("a", 1, "")}, nil
	}
	failing := func(context.Context) ([]port.RawMetric, error) {
		return nil, errors.New("unsupported")
	}

	metrics, err := collectParallel(context.Background(), map[string]collectFn{"ok": ok, "bad": failing})
	if err != nil {
		t.Fatalf("partial failure must not be an error, got %v", err)
	}
	if len(metrics) != 1 {
		t.Errorf("expected 1 metric, got %d", len(metrics))
	}

	if _, err := collectParallel(context.Background(), map[string]collectFn{"bad": failing}); err == nil {
		t.Error("expected error when every source fails")
	}
}

func TestRuntimeCollector(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewRuntimeCollector(start, func() time.Time { return start.Add(90 * time.Second) })

	metrics, err := c.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}

	byName := make(map[string]port.RawMetric, len(metrics))
	for _, m := range metrics {
		byName[m.Name] = m
	}
	for _, name := range []string{"app.goroutines", "app.memory.heap_alloc_bytes", "app.memory.sys_bytes", "app.gc.count", "app.gc.pause_total_ms"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing %s", name)
		}
	}
	if got := byName["app.uptime_seconds"].Value; got != 90 {
		t.Errorf("uptime = %v, want 90", got)
	}
	if byName["app.goroutines"].Value < 1 {
		t.Error("expected at least one goroutine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.CollectAll(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMemoryCollectorNames(t *testing.T) {
	metrics, err := NewMemoryCollector().Collect(context.Background())
	if err != nil {
		t.Skipf("virtual memory stats unavailable: %v", err)
	}
	seen := make(map[string]bool)
	for _, m := range metrics {
		seen[m.Name] = true
	}
	for _, name := range []string{"system.memory.usage_percent", "system.memory.available_bytes", "system.memory.used_bytes"} {
		if !seen[name] {
			t.Errorf("missing %s", name)
		}
	}
}
