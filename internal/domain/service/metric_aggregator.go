package service

import (
	"errors"
	"sort"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// ErrNoSamples возвращается, когда агрегировать нечего
var ErrNoSamples = errors.New("no samples to aggregate")

// MetricAggregator предоставляет сервисы для агрегации сэмплов (Domain Service)
// Содержит бизнес-логику, которая не принадлежит одной конкретной сущности
type MetricAggregator struct{}

// NewMetricAggregator создает новый MetricAggregator
func NewMetricAggregator() *MetricAggregator {
	return &MetricAggregator{}
}

// Bucket - один временной бакет; Stats == nil, если данных нет
type Bucket struct {
	Start time.Time
	Stats *Summary
}

// HistogramBin - один интервал гистограммы [Lower, Upper)
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram - равноширинная гистограмма с описательной статистикой
type Histogram struct {
	Bins       []HistogramBin `json:"bins"`
	Min        float64        `json:"min"`
	Max        float64        `json:"max"`
	Mean       float64        `json:"mean"`
	Median     float64        `json:"median"`
	P95        float64        `json:"p95"`
	P99        float64        `json:"p99"`
	StdDev     float64        `json:"stddev"`
	SampleSize int            `json:"sample_size"`
}

// Values извлекает значения в порядке вставки
func (a *MetricAggregator) Values(samples []entity.Sample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value()
	}
	return values
}

// GroupByName группирует сэмплы по имени, сохраняя порядок вставки внутри группы
func (a *MetricAggregator) GroupByName(samples []entity.Sample) map[string][]entity.Sample {
	groups := make(map[string][]entity.Sample)
	for _, s := range samples {
		groups[s.Name()] = append(groups[s.Name()], s)
	}
	return groups
}

// Latest возвращает последний по порядку вставки сэмпл
func (a *MetricAggregator) Latest(samples []entity.Sample) (entity.Sample, error) {
	if len(samples) == 0 {
		return entity.Sample{}, ErrNoSamples
	}
	return samples[len(samples)-1], nil
}

// BucketByInterval разбивает сэмплы на бакеты шириной width в диапазоне [from, to].
// Границы бакетов выровнены через time.Truncate, пустые бакеты присутствуют с Stats == nil.
func (a *MetricAggregator) BucketByInterval(samples []entity.Sample, from, to time.Time, width time.Duration) []Bucket {
	if width <= 0 || to.Before(from) {
		return nil
	}

	grouped := make(map[int64][]float64)
	for _, s := range samples {
		ts := s.Timestamp()
		if ts.Before(from) || ts.After(to) {
			continue
		}
		key := ts.Truncate(width).UnixNano()
		grouped[key] = append(grouped[key], s.Value())
	}

	start := from.Truncate(width)
	end := to.Truncate(width)
	buckets := make([]Bucket, 0, int(end.Sub(start)/width)+1)
	for t := start; !t.After(end); t = t.Add(width) {
		b := Bucket{Start: t}
		if values, ok := grouped[t.UnixNano()]; ok {
			summary := Summarize(values)
			b.Stats = &summary
		}
		buckets = append(buckets, b)
	}

	return buckets
}

// BuildHistogram строит гистограмму из bins равных интервалов.
// Если все значения равны, возвращается один бин со всеми точками.
func (a *MetricAggregator) BuildHistogram(values []float64, bins int) (Histogram, error) {
	if len(values) == 0 {
		return Histogram{}, ErrNoSamples
	}
	if bins <= 0 {
		bins = 1
	}

	sorted := Sorted(values)
	h := Histogram{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       Mean(sorted),
		Median:     Median(sorted),
		P95:        InterpolatedPercentile(sorted, 95),
		P99:        InterpolatedPercentile(sorted, 99),
		StdDev:     StdDev(sorted),
		SampleSize: len(sorted),
	}

	if h.Min == h.Max {
		h.Bins = []HistogramBin{{Lower: h.Min, Upper: h.Max, Count: len(sorted)}}
		return h, nil
	}

	width := (h.Max - h.Min) / float64(bins)
	h.Bins = make([]HistogramBin, bins)
	for i := range h.Bins {
		h.Bins[i].Lower = h.Min + float64(i)*width
		h.Bins[i].Upper = h.Min + float64(i+1)*width
	}
	h.Bins[bins-1].Upper = h.Max

	for _, v := range sorted {
		idx := int((v - h.Min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		h.Bins[idx].Count++
	}

	return h, nil
}

// TopByCount возвращает имена метрик, отсортированные по числу сэмплов
func (a *MetricAggregator) TopByCount(samples []entity.Sample, limit int) []NameCount {
	counts := make(map[string]int)
	for _, s := range samples {
		counts[s.Name()]++
	}

	result := make([]NameCount, 0, len(counts))
	for name, c := range counts {
		result = append(result, NameCount{Name: name, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// NameCount - пара имя/количество
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
