package port

import (
	"context"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// RawMetric представляет сырую метрику от collector'а
// Используется для передачи данных между Infrastructure и Application слоями
type RawMetric struct {
	Name  string
	Kind  valueobject.MetricKind
	Value float64
	Unit  string
	Tags  map[string]string
}

// MetricSource - любой источник сырых метрик (система, runtime и т.п.)
type MetricSource interface {
	// CollectAll собирает все доступные метрики
	CollectAll(ctx context.Context) ([]RawMetric, error)
}

// MetricsCollector определяет интерфейс для сбора системных метрик (Port)
// Реализация будет в Infrastructure слое
type MetricsCollector interface {
	MetricSource

	// CollectCPU собирает метрики CPU
	CollectCPU(ctx context.Context) ([]RawMetric, error)

	// CollectMemory собирает метрики памяти
	CollectMemory(ctx context.Context) ([]RawMetric, error)

	// CollectDisk собирает метрики дисков
	CollectDisk(ctx context.Context) ([]RawMetric, error)

	// CollectNetwork собирает метрики сети
	CollectNetwork(ctx context.Context) ([]RawMetric, error)
}
