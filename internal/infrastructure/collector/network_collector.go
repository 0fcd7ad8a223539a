package collector

import (
	"context"
	"sync"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/shirou/gopsutil/v3/net"
)

// NetworkCollector отдает прирост трафика с прошлого вызова как counter
type NetworkCollector struct {
	mu       sync.Mutex
	last     net.IOCountersStat
	hasLast  bool
	counters func(ctx context.Context) ([]net.IOCountersStat, error)
}

// NewNetworkCollector создает новый Network collector
func NewNetworkCollector() *NetworkCollector {
	return &NetworkCollector{
		counters: func(ctx context.Context) ([]net.IOCountersStat, error) {
			return net.IOCountersWithContext(ctx, false)
		},
	}
}

// Collect собирает Network метрики. Первый вызов только запоминает базу.
func (c *NetworkCollector) Collect(ctx context.Context) ([]port.RawMetric, error) {
	stats, err := c.counters(ctx)
	if err != nil || len(stats) == 0 {
		return nil, err
	}
	current := stats[0]

	c.mu.Lock()
	defer c.mu.Unlock()

	var metrics []port.RawMetric
	// Счетчики могут сброситься (перезапуск интерфейса), тогда пропускаем раунд
	if c.hasLast && current.BytesSent >= c.last.BytesSent && current.BytesRecv >= c.last.BytesRecv {
		metrics = []port.RawMetric{
			{
				Name:  "system.network.bytes_sent",
				Kind:  valueobject.Counter,
				Value: float64(current.BytesSent - c.last.BytesSent),
				Unit:  "bytes",
				Tags:  map[string]string{"interface": "all"},
			},
			{
				Name:  "system.network.bytes_recv",
				Kind:  valueobject.Counter,
				Value: float64(current.BytesRecv - c.last.BytesRecv),
				Unit:  "bytes",
				Tags:  map[string]string{"interface": "all"},
			},
		}
	}

	c.last = current
	c.hasLast = true

	return metrics, nil
}
