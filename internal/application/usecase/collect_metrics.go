package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/service"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// SampleRecorder принимает готовые сэмплы (обычно telemetry.Pipeline)
type SampleRecorder interface {
	RecordSample(sample entity.Sample)
}

// CollectMetricsUseCase координирует сбор, валидацию, запись и рассылку метрик
type CollectMetricsUseCase struct {
	source    port.MetricSource
	recorder  SampleRecorder
	notifier  port.NotificationService
	validator *service.MetricValidator
	now       func() time.Time
	logger    *logger.Logger
}

// NewCollectMetricsUseCase создает новый use case.
// notifier может быть nil: тогда snapshot никому не рассылается.
func NewCollectMetricsUseCase(
	source port.MetricSource,
	recorder SampleRecorder,
	notifier port.NotificationService,
	validator *service.MetricValidator,
	logger *logger.Logger,
) *CollectMetricsUseCase {
	if validator == nil {
		validator = service.NewMetricValidator()
	}
	return &CollectMetricsUseCase{
		source:    source,
		recorder:  recorder,
		notifier:  notifier,
		validator: validator,
		now:       time.Now,
		logger:    logger,
	}
}

// Execute выполняет один раунд сбора. Подходит как collection.Func.
func (uc *CollectMetricsUseCase) Execute(ctx context.Context) error {
	// 1. Собираем сырые метрики от источника
	rawMetrics, err := uc.source.CollectAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect metrics: %w", err)
	}

	uc.logger.Debug("Collected raw metrics", "count", len(rawMetrics))

	// 2. Конвертируем в Domain Entities
	now := uc.now()
	samples := make([]entity.Sample, 0, len(rawMetrics))
	for _, raw := range rawMetrics {
		sample, err := entity.NewSample(raw.Name, raw.Kind, raw.Value, raw.Unit, raw.Tags, now)
		if err != nil {
			uc.logger.Warn("Skipping invalid metric", "name", raw.Name, "error", err.Error())
			continue
		}

		if err := uc.validator.Validate(sample, now); err != nil {
			uc.logger.Warn("Metric validation failed", "name", raw.Name, "error", err.Error())
			continue
		}

		// Проверка на разумность значений
		if !uc.validator.IsReasonable(sample) {
			uc.logger.Warn("Metric value is unreasonable", "name", raw.Name, "value", raw.Value)
			continue
		}

		samples = append(samples, sample)
	}

	if len(samples) == 0 {
		uc.logger.Warn("No valid metrics collected")
		return nil
	}

	// 3. Записываем в пайплайн (store, sink, правила)
	for _, s := range samples {
		uc.recorder.RecordSample(s)
	}

	// 4. Рассылаем snapshot через WebSocket
	if uc.notifier != nil {
		uc.notifier.Broadcast(dto.NewSystemSnapshotDTO(samples, now))
		uc.logger.Debug("Snapshot broadcasted to clients", "client_count", uc.notifier.ClientCount())
	}

	return nil
}
