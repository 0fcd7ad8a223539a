package collector

import (
	"context"
	"runtime"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
)

// RuntimeCollector отдает метрики Go runtime самого процесса.
// Реализует port.MetricSource
type RuntimeCollector struct {
	startedAt time.Time
	now       func() time.Time
}

// NewRuntimeCollector создает collector; uptime считается от startedAt
func NewRuntimeCollector(startedAt time.Time, now func() time.Time) *RuntimeCollector {
	if now == nil {
		now = time.Now
	}
	return &RuntimeCollector{startedAt: startedAt, now: now}
}

func (c *RuntimeCollector) CollectAll(ctx context.Context) ([]port.RawMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return []port.RawMetric{
		gauge("app.goroutines", float64(runtime.NumGoroutine()), "count"),
		gauge("app.memory.heap_alloc_bytes", float64(ms.HeapAlloc), "bytes"),
		gauge("app.memory.sys_bytes", float64(ms.Sys), "bytes"),
		gauge("app.gc.count", float64(ms.NumGC), "count"),
		gauge("app.gc.pause_total_ms", float64(ms.PauseTotalNs)/float64(time.Millisecond), "ms"),
		gauge("app.uptime_seconds", c.now().Sub(c.startedAt).Seconds(), "s"),
	}, nil
}
