// Package analytics builds read-only views over a store snapshot: time
// series, histograms, correlations, anomalies and exports.
package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/service"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

const (
	FormatJSON = "json"
	FormatCSV  = "csv"

	DefaultWindow      = time.Hour
	DefaultBins        = 20
	DefaultSensitivity = 2.0
	minAnomalyPoints   = 10
)

// SampleSource is the read side of the metric store.
type SampleSource interface {
	Query(nameFilter string, window time.Duration) []entity.Sample
	Now() time.Time
}

// Visualizer is stateless; every call takes its own snapshot.
type Visualizer struct {
	source     SampleSource
	aggregator *service.MetricAggregator
	detector   *service.AnomalyDetector
	logger     *logger.Logger
}

func NewVisualizer(source SampleSource, log *logger.Logger) *Visualizer {
	return &Visualizer{
		source:     source,
		aggregator: service.NewMetricAggregator(),
		detector:   service.NewAnomalyDetector(20),
		logger:     log,
	}
}

func normalizeWindow(window time.Duration) time.Duration {
	if window <= 0 {
		return DefaultWindow
	}
	return window
}

// snapshot returns samples grouped by exact name for the requested names.
func (v *Visualizer) snapshot(names []string, window time.Duration) (map[string][]entity.Sample, time.Time) {
	now := v.source.Now()
	grouped := v.aggregator.GroupByName(v.source.Query("", window))

	result := make(map[string][]entity.Sample, len(names))
	for _, name := range names {
		result[name] = grouped[name]
	}
	return result, now
}

// TimeSeries buckets each named metric by interval over [now-window, now].
func (v *Visualizer) TimeSeries(names []string, window time.Duration, interval valueobject.Interval) *dto.TimeSeriesDTO {
	window = normalizeWindow(window)
	if _, err := valueobject.ParseInterval(interval.String()); err != nil {
		interval = valueobject.Interval1m
	}

	grouped, now := v.snapshot(names, window)
	from := now.Add(-window)
	result := &dto.TimeSeriesDTO{
		Interval: interval.String(),
		From:     from,
		To:       now,
		Series:   make([]dto.SeriesDTO, 0, len(names)),
	}
	if len(names) == 0 {
		result.Error = "no metrics requested"
		return result
	}

	for i, name := range names {
		buckets := v.aggregator.BucketByInterval(grouped[name], from, now, interval.Duration())
		if i == 0 {
			result.Timestamps = make([]time.Time, len(buckets))
			for j, b := range buckets {
				result.Timestamps[j] = b.Start
			}
		}

		series := dto.SeriesDTO{
			Name:        name,
			Data:        make([]*float64, len(buckets)),
			Points:      make([]dto.BucketPointDTO, 0, len(buckets)),
			TotalPoints: len(grouped[name]),
		}
		for j, b := range buckets {
			if b.Stats == nil {
				continue
			}
			mean := b.Stats.Mean
			series.Data[j] = &mean
			series.DataPoints++
			series.Points = append(series.Points, dto.BucketPointDTO{
				Timestamp: b.Start,
				Mean:      b.Stats.Mean,
				Min:       b.Stats.Min,
				Max:       b.Stats.Max,
				Count:     b.Stats.Count,
				StdDev:    b.Stats.StdDev,
			})
		}
		result.Series = append(result.Series, series)
	}
	return result
}

// Histogram returns an equal-width distribution of one metric.
func (v *Visualizer) Histogram(name string, window time.Duration, bins int) *dto.HistogramDTO {
	if bins <= 0 {
		bins = DefaultBins
	}
	grouped, _ := v.snapshot([]string{name}, normalizeWindow(window))

	result := &dto.HistogramDTO{Metric: name}
	h, err := v.aggregator.BuildHistogram(v.aggregator.Values(grouped[name]), bins)
	if err != nil {
		result.Error = fmt.Sprintf("no data for metric %s", name)
		return result
	}

	result.Bins = make([]dto.HistogramBinDTO, len(h.Bins))
	for i, b := range h.Bins {
		result.Bins[i] = dto.HistogramBinDTO{Lower: b.Lower, Upper: b.Upper, Count: b.Count}
	}
	result.Min = h.Min
	result.Max = h.Max
	result.Mean = h.Mean
	result.Median = h.Median
	result.P95 = h.P95
	result.P99 = h.P99
	result.StdDev = h.StdDev
	result.SampleSize = h.SampleSize
	return result
}

// Correlation computes Pearson's r for every pair of metrics with data.
func (v *Visualizer) Correlation(names []string, window time.Duration) *dto.CorrelationDTO {
	grouped, _ := v.snapshot(names, normalizeWindow(window))

	result := &dto.CorrelationDTO{Matrix: make(map[string]map[string]float64)}
	series := make(map[string][]float64)
	for _, name := range names {
		if _, dup := series[name]; dup || len(grouped[name]) == 0 {
			continue
		}
		series[name] = v.aggregator.Values(grouped[name])
		result.Metrics = append(result.Metrics, name)
	}
	if len(result.Metrics) < 2 {
		result.Error = "at least two metrics with data are required"
		return result
	}

	result.SampleSize = len(series[result.Metrics[0]])
	for _, name := range result.Metrics {
		if n := len(series[name]); n < result.SampleSize {
			result.SampleSize = n
		}
	}

	for _, a := range result.Metrics {
		result.Matrix[a] = make(map[string]float64, len(result.Metrics))
	}
	for i, a := range result.Metrics {
		result.Matrix[a][a] = 1.0
		for _, b := range result.Metrics[i+1:] {
			r, _ := service.Pearson(series[a][:result.SampleSize], series[b][:result.SampleSize])
			result.Matrix[a][b] = r
			result.Matrix[b][a] = r
		}
	}
	return result
}

// Anomalies flags points whose rolling z-score exceeds sensitivity.
func (v *Visualizer) Anomalies(name string, window time.Duration, sensitivity float64) *dto.AnomalyReportDTO {
	if sensitivity <= 0 {
		sensitivity = DefaultSensitivity
	}
	grouped, _ := v.snapshot([]string{name}, normalizeWindow(window))
	samples := grouped[name]

	result := &dto.AnomalyReportDTO{
		Metric:      name,
		Anomalies:   []dto.AnomalyDTO{},
		Sensitivity: sensitivity,
		TotalPoints: len(samples),
	}
	if len(samples) < minAnomalyPoints {
		result.Error = fmt.Sprintf("insufficient data: need at least %d points, got %d", minAnomalyPoints, len(samples))
		return result
	}

	values := v.aggregator.Values(samples)
	result.WindowSize = v.detector.WindowSize(len(values))
	result.Threshold = service.Mean(values) + sensitivity*service.StdDev(values)

	for _, p := range v.detector.Detect(values, sensitivity) {
		result.Anomalies = append(result.Anomalies, dto.AnomalyDTO{
			Timestamp:     samples[p.Index].Timestamp(),
			Value:         p.Value,
			ZScore:        p.ZScore,
			ExpectedValue: p.ExpectedValue,
		})
	}
	result.AnomalyRate = float64(len(result.Anomalies)) / float64(len(values)) * 100
	return result
}

// Export renders the time series of names as json or csv and returns the
// payload with its content type.
func (v *Visualizer) Export(names []string, window time.Duration, interval valueobject.Interval, format string) ([]byte, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatJSON && format != FormatCSV {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	ts := v.TimeSeries(names, window, interval)
	if format == FormatJSON {
		data, err := json.MarshalIndent(ts, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal time series: %w", err)
		}
		return data, "application/json", nil
	}

	data, err := encodeCSV(names, ts)
	if err != nil {
		return nil, "", err
	}
	return data, "text/csv", nil
}

func encodeCSV(names []string, ts *dto.TimeSeriesDTO) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(append([]string{"timestamp"}, names...)); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for i, at := range ts.Timestamps {
		row := make([]string, 1, len(ts.Series)+1)
		row[0] = at.UTC().Format(time.RFC3339)
		hasData := false
		for _, s := range ts.Series {
			if i < len(s.Data) && s.Data[i] != nil {
				row = append(row, strconv.FormatFloat(*s.Data[i], 'g', -1, 64))
				hasData = true
			} else {
				row = append(row, "")
			}
		}
		if !hasData {
			continue
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Summary returns per-metric statistics for every metric in the window,
// sorted by name.
func (v *Visualizer) Summary(window time.Duration) []dto.MetricSummaryDTO {
	grouped := v.aggregator.GroupByName(v.source.Query("", normalizeWindow(window)))

	result := make([]dto.MetricSummaryDTO, 0, len(grouped))
	for name, samples := range grouped {
		st := service.Summarize(v.aggregator.Values(samples))
		latest := samples[len(samples)-1]
		result = append(result, dto.MetricSummaryDTO{
			Name:   name,
			Count:  st.Count,
			Mean:   st.Mean,
			Min:    st.Min,
			Max:    st.Max,
			Latest: latest.Value(),
			LastAt: latest.Timestamp(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// TopMetrics ranks metrics by sample count in the window.
func (v *Visualizer) TopMetrics(window time.Duration, limit int) []service.NameCount {
	return v.aggregator.TopByCount(v.source.Query("", normalizeWindow(window)), limit)
}
