package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// ErrExportStorageDisabled возвращается, когда upload запрошен без настроенного хранилища
var ErrExportStorageDisabled = errors.New("export storage is not configured")

// Exporter рендерит выгрузку (обычно telemetry.Pipeline)
type Exporter interface {
	Export(names []string, window time.Duration, interval valueobject.Interval, format string) ([]byte, string, error)
}

// ExportRequest - параметры выгрузки
type ExportRequest struct {
	Names    []string
	Window   time.Duration
	Interval valueobject.Interval
	Format   string
	Upload   bool
}

// ExportMetricsUseCase рендерит выгрузку и при необходимости кладет ее в хранилище
type ExportMetricsUseCase struct {
	exporter Exporter
	storage  port.ExportStorage
	now      func() time.Time
	logger   *logger.Logger
}

// NewExportMetricsUseCase создает новый use case; storage может быть nil
func NewExportMetricsUseCase(exporter Exporter, storage port.ExportStorage, logger *logger.Logger) *ExportMetricsUseCase {
	return &ExportMetricsUseCase{
		exporter: exporter,
		storage:  storage,
		now:      time.Now,
		logger:   logger,
	}
}

// Execute возвращает тело выгрузки и метаданные. При Upload тело не возвращается.
func (uc *ExportMetricsUseCase) Execute(ctx context.Context, req ExportRequest) ([]byte, *dto.ExportResultDTO, error) {
	if req.Upload && uc.storage == nil {
		return nil, nil, ErrExportStorageDisabled
	}

	data, contentType, err := uc.exporter.Export(req.Names, req.Window, req.Interval, req.Format)
	if err != nil {
		return nil, nil, err
	}

	format := strings.ToLower(strings.TrimSpace(req.Format))
	result := &dto.ExportResultDTO{
		Format:      format,
		ContentType: contentType,
		Size:        len(data),
	}
	if !req.Upload {
		return data, result, nil
	}

	result.Key = exportKey(uc.now(), format)
	url, err := uc.storage.PutObject(ctx, result.Key, contentType, data)
	if err != nil {
		uc.logger.Error("Failed to upload export", err, "key", result.Key)
		return nil, nil, fmt.Errorf("failed to upload export: %w", err)
	}
	result.URL = url

	uc.logger.Info("Export uploaded", "key", result.Key, "size", result.Size)
	return nil, result, nil
}

// exportKey строит ключ вида exports/2026/01/02/20260102T150405Z.csv
func exportKey(at time.Time, format string) string {
	at = at.UTC()
	return fmt.Sprintf("exports/%s/%s.%s", at.Format("2006/01/02"), at.Format("20060102T150405Z"), format)
}
