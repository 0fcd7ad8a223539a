package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/usecase"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/middleware"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/performance"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// MetricsQuerier - чтение метрик из in-memory store
type MetricsQuerier interface {
	GetMetrics(filter string, window time.Duration) []dto.SampleDTO
	GetPerformanceStats(operation string, window time.Duration) map[string]performance.OperationStats
}

// MetricsAPIHandler обрабатывает API запросы для метрик
type MetricsAPIHandler struct {
	metrics   MetricsQuerier
	historyUC *usecase.GetHistoricalSamplesUseCase
	logger    *logger.Logger
}

// NewMetricsAPIHandler создает новый handler; historyUC может быть nil
func NewMetricsAPIHandler(
	metrics MetricsQuerier,
	historyUC *usecase.GetHistoricalSamplesUseCase,
	logger *logger.Logger,
) *MetricsAPIHandler {
	return &MetricsAPIHandler{
		metrics:   metrics,
		historyUC: historyUC,
		logger:    logger,
	}
}

// GetMetrics отдает сэмплы из store; name - подстрока имени
func (h *MetricsAPIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}

	samples := h.metrics.GetMetrics(strings.TrimSpace(r.URL.Query().Get("name")), window)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"metrics": samples,
		"count":   len(samples),
		"window":  window.String(),
	})
}

// GetHistory возвращает историю одной метрики из sink.
// Диапазон задается from/to (RFC3339) или duration, отсчитанным от текущего момента.
func (h *MetricsAPIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.historyUC == nil {
		http.Error(w, "Metric history is not available", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		http.Error(w, "Missing required parameter: name", http.StatusBadRequest)
		return
	}

	timeRange, err := parseHistoryRange(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	limit, err := parseInt(r, "limit", 0)
	if err != nil {
		badRequest(w, err)
		return
	}

	history, err := h.historyUC.Execute(r.Context(), name, timeRange, limit)
	switch {
	case errors.Is(err, usecase.ErrInvalidHistoryQuery):
		badRequest(w, err)
		return
	case errors.Is(err, telemetry.ErrHistoryUnavailable):
		h.logger.Warn("Metric history unavailable", "name", name, "error", err)
		http.Error(w, "Metric history is not available", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Error("Failed to get metric history", err, "name", name)
		http.Error(w, "Failed to fetch metrics", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, history)
}

func parseHistoryRange(r *http.Request) (valueobject.TimeRange, error) {
	q := r.URL.Query()
	fromRaw, toRaw := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))

	if fromRaw == "" {
		window, err := parseWindow(r, "duration", defaultWindow)
		if err != nil {
			return valueobject.TimeRange{}, err
		}
		now := time.Now().UTC()
		return valueobject.NewTimeRange(now.Add(-window), now)
	}

	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return valueobject.TimeRange{}, fmt.Errorf("%w: from must be RFC3339", errBadParam)
	}
	to := time.Now().UTC()
	if toRaw != "" {
		if to, err = time.Parse(time.RFC3339, toRaw); err != nil {
			return valueobject.TimeRange{}, fmt.Errorf("%w: to must be RFC3339", errBadParam)
		}
	}
	if to.Sub(from) > maxWindow {
		return valueobject.TimeRange{}, fmt.Errorf("%w: range out of allowed range", errBadParam)
	}
	tr, err := valueobject.NewTimeRange(from, to)
	if err != nil {
		return valueobject.TimeRange{}, fmt.Errorf("%w: %v", errBadParam, err)
	}
	return tr, nil
}

// GetPerformance отдает статистику операций трекера
func (h *MetricsAPIHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}

	stats := h.metrics.GetPerformanceStats(strings.TrimSpace(r.URL.Query().Get("operation")), window)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"operations": stats,
		"window":     window.String(),
	})
}
