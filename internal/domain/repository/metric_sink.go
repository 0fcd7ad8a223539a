package repository

import (
	"context"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// MetricSink определяет внешнее долговременное хранилище сэмплов (Port)
// Реализации: Postgres, CloudWatch, no-op. Выбирается при сборке пайплайна.
type MetricSink interface {
	// Name возвращает имя sink для логов и health-check
	Name() string

	// WriteBatch сохраняет пачку сэмплов
	WriteBatch(ctx context.Context, samples []entity.Sample) error

	// Ping проверяет доступность хранилища
	Ping(ctx context.Context) error
}

// MetricHistory - sink, который умеет отдавать историю (не все sink это умеют)
type MetricHistory interface {
	// FindByRange находит сэмплы по точному имени и временному диапазону
	FindByRange(ctx context.Context, name string, timeRange valueobject.TimeRange, limit int) ([]entity.Sample, error)

	// DeleteOlderThan удаляет сэмплы старше указанного момента
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
