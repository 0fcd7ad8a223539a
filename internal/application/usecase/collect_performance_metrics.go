package usecase

import (
	"context"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/performance"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// PerformanceStatsSource отдает статистику операций за окно
type PerformanceStatsSource interface {
	GetPerformanceStats(operation string, window time.Duration) map[string]performance.OperationStats
}

// CollectPerformanceMetricsUseCase превращает статистику трекера в сэмплы
// performance.<op>.error_rate и performance.<op>.p95
type CollectPerformanceMetricsUseCase struct {
	stats    PerformanceStatsSource
	recorder SampleRecorder
	window   time.Duration
	now      func() time.Time
	logger   *logger.Logger
}

// NewCollectPerformanceMetricsUseCase создает новый use case; window по умолчанию 5m
func NewCollectPerformanceMetricsUseCase(
	stats PerformanceStatsSource,
	recorder SampleRecorder,
	window time.Duration,
	logger *logger.Logger,
) *CollectPerformanceMetricsUseCase {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &CollectPerformanceMetricsUseCase{
		stats:    stats,
		recorder: recorder,
		window:   window,
		now:      time.Now,
		logger:   logger,
	}
}

// Execute подходит как collection.Func
func (uc *CollectPerformanceMetricsUseCase) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := uc.now()
	for op, st := range uc.stats.GetPerformanceStats("", uc.window) {
		tags := map[string]string{"operation": op}
		uc.emit(performance.MetricPrefix+op+".error_rate", st.ErrorRate, "%", tags, now)
		uc.emit(performance.MetricPrefix+op+".p95", st.P95Duration, "ms", tags, now)
	}
	return nil
}

func (uc *CollectPerformanceMetricsUseCase) emit(name string, value float64, unit string, tags map[string]string, at time.Time) {
	sample, err := entity.NewSample(name, valueobject.Gauge, value, unit, tags, at)
	if err != nil {
		uc.logger.Warn("Performance summary sample rejected", "name", name, "error", err)
		return
	}
	uc.recorder.RecordSample(sample)
}
