package collector

import (
	"context"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryCollector собирает метрики памяти и swap
type MemoryCollector struct{}

// NewMemoryCollector создает новый Memory collector
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// Collect собирает Memory метрики
func (c *MemoryCollector) Collect(ctx context.Context) ([]port.RawMetric, error) {
	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	metrics := []port.RawMetric{
		gauge("system.memory.usage_percent", vmStat.UsedPercent, "%"),
		gauge("system.memory.available_bytes", float64(vmStat.Available), "bytes"),
		gauge("system.memory.used_bytes", float64(vmStat.Used), "bytes"),
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil && swap.Total > 0 {
		metrics = append(metrics, gauge("system.swap.usage_percent", swap.UsedPercent, "%"))
	}

	return metrics, nil
}
