package collector

import (
	"context"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/shirou/gopsutil/v3/disk"
)

// DiskCollector собирает метрики диска по точке монтирования
type DiskCollector struct {
	mountpoint string
}

// NewDiskCollector создает новый Disk collector; пустой mountpoint означает "/"
func NewDiskCollector(mountpoint string) *DiskCollector {
	if mountpoint == "" {
		mountpoint = "/"
	}
	return &DiskCollector{mountpoint: mountpoint}
}

// Collect собирает Disk метрики
func (c *DiskCollector) Collect(ctx context.Context) ([]port.RawMetric, error) {
	usage, err := disk.UsageWithContext(ctx, c.mountpoint)
	if err != nil {
		return nil, err
	}

	tags := map[string]string{"mount": usage.Path}
	usageMetric := gauge("system.disk.usage_percent", usage.UsedPercent, "%")
	usageMetric.Tags = tags
	freeMetric := gauge("system.disk.free_bytes", float64(usage.Free), "bytes")
	freeMetric.Tags = tags

	return []port.RawMetric{usageMetric, freeMetric}, nil
}
