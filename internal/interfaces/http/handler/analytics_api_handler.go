package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/usecase"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/service"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/middleware"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/analytics"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const (
	defaultBins        = 20
	maxBins            = 200
	defaultSensitivity = 2.0
	defaultTopMetrics  = 10
)

// AnalyticsService - аналитические представления над store
type AnalyticsService interface {
	GetTimeSeries(names []string, window time.Duration, interval valueobject.Interval) *dto.TimeSeriesDTO
	GetHistogram(name string, window time.Duration, bins int) *dto.HistogramDTO
	GetCorrelation(names []string, window time.Duration) *dto.CorrelationDTO
	GetAnomalies(name string, window time.Duration, sensitivity float64) *dto.AnomalyReportDTO
	GetSummary(window time.Duration) []dto.MetricSummaryDTO
	GetTopMetrics(window time.Duration, limit int) []service.NameCount
}

// AnalyticsAPIHandler обрабатывает аналитику и выгрузки
type AnalyticsAPIHandler struct {
	analytics AnalyticsService
	exportUC  *usecase.ExportMetricsUseCase
	logger    *logger.Logger
}

// NewAnalyticsAPIHandler создает новый handler
func NewAnalyticsAPIHandler(
	analytics AnalyticsService,
	exportUC *usecase.ExportMetricsUseCase,
	logger *logger.Logger,
) *AnalyticsAPIHandler {
	return &AnalyticsAPIHandler{
		analytics: analytics,
		exportUC:  exportUC,
		logger:    logger,
	}
}

func parseInterval(r *http.Request) (valueobject.Interval, error) {
	raw := r.URL.Query().Get("interval")
	if raw == "" {
		return valueobject.Interval1m, nil
	}
	return valueobject.ParseInterval(raw)
}

func requireNames(r *http.Request) ([]string, bool) {
	names := splitNames(r.URL.Query().Get("names"))
	return names, len(names) > 0
}

// TimeSeries - /analytics/timeseries?names=a,b&window=1h&interval=5m
func (h *AnalyticsAPIHandler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	names, ok := requireNames(r)
	if !ok {
		http.Error(w, "Missing required parameter: names", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}
	interval, err := parseInterval(r)
	if err != nil {
		http.Error(w, "Invalid interval", http.StatusBadRequest)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.analytics.GetTimeSeries(names, window, interval))
}

// Histogram - /analytics/histogram?name=a&bins=20
func (h *AnalyticsAPIHandler) Histogram(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "Missing required parameter: name", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}
	bins, err := parseInt(r, "bins", defaultBins)
	if err != nil || bins < 1 || bins > maxBins {
		http.Error(w, "bins must be between 1 and "+strconv.Itoa(maxBins), http.StatusBadRequest)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.analytics.GetHistogram(name, window, bins))
}

// Correlation - /analytics/correlation?names=a,b
func (h *AnalyticsAPIHandler) Correlation(w http.ResponseWriter, r *http.Request) {
	names, ok := requireNames(r)
	if !ok {
		http.Error(w, "Missing required parameter: names", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.analytics.GetCorrelation(names, window))
}

// Anomalies - /analytics/anomalies?name=a&sensitivity=2
func (h *AnalyticsAPIHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "Missing required parameter: name", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}
	sensitivity, err := parseFloat(r, "sensitivity", defaultSensitivity)
	if err != nil {
		badRequest(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.analytics.GetAnomalies(name, window, sensitivity))
}

func (h *AnalyticsAPIHandler) Summary(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}

	top, err := parseInt(r, "top", defaultTopMetrics)
	if err != nil || top < 1 {
		http.Error(w, "Invalid top", http.StatusBadRequest)
		return
	}

	summary := h.analytics.GetSummary(window)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"metrics":     summary,
		"count":       len(summary),
		"top_metrics": h.analytics.GetTopMetrics(window, top),
		"window":      window.String(),
	})
}

// Export - /export?format=csv&names=a,b&upload=true
func (h *AnalyticsAPIHandler) Export(w http.ResponseWriter, r *http.Request) {
	names, ok := requireNames(r)
	if !ok {
		http.Error(w, "Missing required parameter: names", http.StatusBadRequest)
		return
	}
	window, err := parseWindow(r, "window", defaultWindow)
	if err != nil {
		badRequest(w, err)
		return
	}
	interval, err := parseInterval(r)
	if err != nil {
		http.Error(w, "Invalid interval", http.StatusBadRequest)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = analytics.FormatJSON
	}
	upload, _ := strconv.ParseBool(r.URL.Query().Get("upload"))

	data, result, err := h.exportUC.Execute(r.Context(), usecase.ExportRequest{
		Names:    names,
		Window:   window,
		Interval: interval,
		Format:   format,
		Upload:   upload,
	})
	switch {
	case errors.Is(err, analytics.ErrUnsupportedFormat), errors.Is(err, usecase.ErrExportStorageDisabled):
		badRequest(w, err)
		return
	case err != nil:
		h.logger.Error("Export failed", err, "format", format)
		http.Error(w, "Export failed", http.StatusInternalServerError)
		return
	}

	if upload {
		middleware.WriteJSON(w, http.StatusCreated, result)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="metrics.`+result.Format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
