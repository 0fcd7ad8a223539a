package collector

import (
	"context"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
)

// CPUCollector собирает метрики CPU и средней загрузки
type CPUCollector struct {
	sampleWindow time.Duration
}

// NewCPUCollector создает новый CPU collector
func NewCPUCollector() *CPUCollector {
	return &CPUCollector{sampleWindow: time.Second}
}

// Collect собирает CPU метрики
func (c *CPUCollector) Collect(ctx context.Context) ([]port.RawMetric, error) {
	// Процент использования CPU за sampleWindow
	percentages, err := cpu.PercentWithContext(ctx, c.sampleWindow, false)
	if err != nil {
		return nil, err
	}

	counts, _ := cpu.CountsWithContext(ctx, true)

	metrics := make([]port.RawMetric, 0, 4)
	if len(percentages) > 0 {
		metrics = append(metrics, gauge("system.cpu.usage_percent", percentages[0], "%"))
	}
	if counts > 0 {
		metrics = append(metrics, gauge("system.cpu.count", float64(counts), "count"))
	}

	// load average есть не на всех платформах
	if avg, err := load.AvgWithContext(ctx); err == nil {
		metrics = append(metrics,
			gauge("system.load.1m", avg.Load1, ""),
			gauge("system.load.5m", avg.Load5, ""),
		)
	}

	return metrics, nil
}

// gauge строит сырую gauge-метрику
func gauge(name string, value float64, unit string) port.RawMetric {
	return port.RawMetric{
		Name:  name,
		Kind:  valueobject.Gauge,
		Value: value,
		Unit:  unit,
	}
}
