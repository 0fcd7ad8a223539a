package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/service"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/cache/redis"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const (
	defaultHistoryLimit = 1000
	maxHistoryLimit     = 10000
)

// ErrInvalidHistoryQuery возвращается при пустом имени или неверном диапазоне
var ErrInvalidHistoryQuery = errors.New("invalid history query")

// HistorySource читает историю из внешнего sink
type HistorySource interface {
	GetHistory(ctx context.Context, name string, tr valueobject.TimeRange, limit int) ([]entity.Sample, error)
}

// GetHistoricalSamplesUseCase возвращает историю метрики из sink с кешированием
type GetHistoricalSamplesUseCase struct {
	source HistorySource
	cache  port.Cache
	logger *logger.Logger
}

// NewGetHistoricalSamplesUseCase создает новый use case; cache может быть nil
func NewGetHistoricalSamplesUseCase(
	source HistorySource,
	cache port.Cache,
	logger *logger.Logger,
) *GetHistoricalSamplesUseCase {
	return &GetHistoricalSamplesUseCase{
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// Execute выполняет получение истории с кешированием
func (uc *GetHistoricalSamplesUseCase) Execute(
	ctx context.Context,
	name string,
	timeRange valueobject.TimeRange,
	limit int,
) (*dto.SampleHistoryDTO, error) {
	if name == "" || timeRange.Unbounded() {
		return nil, fmt.Errorf("%w: name and bounded range are required", ErrInvalidHistoryQuery)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	// Если кеш не настроен, используем стандартный путь
	if uc.cache == nil {
		return uc.executeWithoutCache(ctx, name, timeRange, limit)
	}

	cacheKey := redis.HistoryCacheKey(name, timeRange.Start(), timeRange.End(), limit)

	var cached dto.SampleHistoryDTO
	err := uc.cache.Get(ctx, cacheKey, &cached)
	if err == nil {
		uc.logger.Debug("Cache hit for metric history", "name", name, "count", cached.Count)
		cached.Cached = true
		return &cached, nil
	}
	if !errors.Is(err, port.ErrCacheMiss) {
		uc.logger.Warn("Cache read failed, falling back to sink", "name", name, "error", err)
	}

	history, err := uc.executeWithoutCache(ctx, name, timeRange, limit)
	if err != nil {
		return nil, err
	}

	if err := uc.cache.Set(ctx, cacheKey, history); err != nil {
		uc.logger.Warn("Failed to cache metric history", "name", name, "error", err)
	}

	return history, nil
}

func (uc *GetHistoricalSamplesUseCase) executeWithoutCache(
	ctx context.Context,
	name string,
	timeRange valueobject.TimeRange,
	limit int,
) (*dto.SampleHistoryDTO, error) {
	samples, err := uc.source.GetHistory(ctx, name, timeRange, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metric history: %w", err)
	}

	uc.logger.Debug("Fetched metric history", "name", name, "count", len(samples))

	history := &dto.SampleHistoryDTO{
		Name:    name,
		From:    timeRange.Start(),
		To:      timeRange.End(),
		Samples: dto.ToSampleDTOs(samples),
		Count:   len(samples),
	}
	if len(samples) == 0 {
		return history, nil
	}

	values := service.NewMetricAggregator().Values(samples)
	summary := service.Summarize(values)
	history.Average = summary.Mean
	history.Min = summary.Min
	history.Max = summary.Max
	history.P95 = service.NearestRankPercentile(service.Sorted(values), 95)

	return history, nil
}
