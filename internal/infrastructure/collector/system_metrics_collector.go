package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
)

// collectFn - один источник системных метрик
type collectFn func(context.Context) ([]port.RawMetric, error)

// SystemMetricsCollector собирает все системные метрики
// Реализует интерфейс port.MetricsCollector
type SystemMetricsCollector struct {
	cpuCollector     *CPUCollector
	memoryCollector  *MemoryCollector
	diskCollector    *DiskCollector
	networkCollector *NetworkCollector
	processCollector *ProcessCollector
}

// NewSystemMetricsCollector создает новый системный collector
func NewSystemMetricsCollector(diskMountpoint string) *SystemMetricsCollector {
	return &SystemMetricsCollector{
		cpuCollector:     NewCPUCollector(),
		memoryCollector:  NewMemoryCollector(),
		diskCollector:    NewDiskCollector(diskMountpoint),
		networkCollector: NewNetworkCollector(),
		processCollector: NewProcessCollector(),
	}
}

// CollectAll собирает все доступные метрики параллельно.
// Ошибка возвращается, только если не сработал ни один источник.
func (c *SystemMetricsCollector) CollectAll(ctx context.Context) ([]port.RawMetric, error) {
	return collectParallel(ctx, map[string]collectFn{
		"cpu":     c.cpuCollector.Collect,
		"memory":  c.memoryCollector.Collect,
		"disk":    c.diskCollector.Collect,
		"network": c.networkCollector.Collect,
		"process": c.processCollector.Collect,
	})
}

func collectParallel(ctx context.Context, sources map[string]collectFn) ([]port.RawMetric, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	allMetrics := make([]port.RawMetric, 0, 16)
	var errs []error

	for name, fn := range sources {
		wg.Add(1)
		go func(name string, fn collectFn) {
			defer wg.Done()
			metrics, err := fn(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			allMetrics = append(allMetrics, metrics...)
		}(name, fn)
	}

	wg.Wait()

	if len(errs) == len(sources) {
		return nil, errors.Join(errs...)
	}
	return allMetrics, nil
}

// CollectCPU собирает только CPU метрики
func (c *SystemMetricsCollector) CollectCPU(ctx context.Context) ([]port.RawMetric, error) {
	return c.cpuCollector.Collect(ctx)
}

// CollectMemory собирает только Memory метрики
func (c *SystemMetricsCollector) CollectMemory(ctx context.Context) ([]port.RawMetric, error) {
	return c.memoryCollector.Collect(ctx)
}

// CollectDisk собирает только Disk метрики
func (c *SystemMetricsCollector) CollectDisk(ctx context.Context) ([]port.RawMetric, error) {
	return c.diskCollector.Collect(ctx)
}

// CollectNetwork собирает только Network метрики
func (c *SystemMetricsCollector) CollectNetwork(ctx context.Context) ([]port.RawMetric, error) {
	return c.networkCollector.Collect(ctx)
}
