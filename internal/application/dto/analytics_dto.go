package dto

import "time"

// BucketPointDTO - агрегат одного временного бакета
type BucketPointDTO struct {
	Timestamp time.Time `json:"timestamp"`
	Mean      float64   `json:"mean"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Count     int       `json:"count"`
	StdDev    float64   `json:"stddev"`
}

// SeriesDTO - один ряд; Data выровнен по TimeSeriesDTO.Timestamps, nil для пустых бакетов
type SeriesDTO struct {
	Name        string           `json:"name"`
	Data        []*float64       `json:"data"`
	Points      []BucketPointDTO `json:"points"`
	TotalPoints int              `json:"total_points"`
	DataPoints  int              `json:"data_points"`
}

// TimeSeriesDTO - многорядный временной ряд
type TimeSeriesDTO struct {
	Timestamps []time.Time `json:"timestamps"`
	Series     []SeriesDTO `json:"series"`
	Interval   string      `json:"interval"`
	From       time.Time   `json:"from"`
	To         time.Time   `json:"to"`
	Error      string      `json:"error,omitempty"`
}

// HistogramBinDTO - один бин гистограммы
type HistogramBinDTO struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// HistogramDTO - распределение значений метрики
type HistogramDTO struct {
	Metric     string            `json:"metric"`
	Bins       []HistogramBinDTO `json:"bins"`
	Min        float64           `json:"min"`
	Max        float64           `json:"max"`
	Mean       float64           `json:"mean"`
	Median     float64           `json:"median"`
	P95        float64           `json:"p95"`
	P99        float64           `json:"p99"`
	StdDev     float64           `json:"stddev"`
	SampleSize int               `json:"sample_size"`
	Error      string            `json:"error,omitempty"`
}

// CorrelationDTO - матрица корреляций Пирсона
type CorrelationDTO struct {
	Metrics    []string                      `json:"metrics"`
	Matrix     map[string]map[string]float64 `json:"matrix"`
	SampleSize int                           `json:"sample_size"`
	Error      string                        `json:"error,omitempty"`
}

// AnomalyDTO - одна аномальная точка
type AnomalyDTO struct {
	Timestamp     time.Time `json:"timestamp"`
	Value         float64   `json:"value"`
	ZScore        float64   `json:"z_score"`
	ExpectedValue float64   `json:"expected_value"`
}

// AnomalyReportDTO - результат поиска аномалий
type AnomalyReportDTO struct {
	Metric      string       `json:"metric"`
	Anomalies   []AnomalyDTO `json:"anomalies"`
	Threshold   float64      `json:"threshold"`
	Sensitivity float64      `json:"sensitivity"`
	WindowSize  int          `json:"window_size"`
	TotalPoints int          `json:"total_points"`
	AnomalyRate float64      `json:"anomaly_rate"`
	Error       string       `json:"error,omitempty"`
}

// MetricSummaryDTO - сводка по одной метрике
type MetricSummaryDTO struct {
	Name   string    `json:"name"`
	Count  int       `json:"count"`
	Mean   float64   `json:"mean"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Latest float64   `json:"latest"`
	LastAt time.Time `json:"last_at"`
}
