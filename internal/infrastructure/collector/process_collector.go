package collector

import (
	"context"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessCollector считает процессы в системе
type ProcessCollector struct{}

func NewProcessCollector() *ProcessCollector {
	return &ProcessCollector{}
}

func (c *ProcessCollector) Collect(ctx context.Context) ([]port.RawMetric, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return []port.RawMetric{gauge("system.process.count", float64(len(pids)), "count")}, nil
}
