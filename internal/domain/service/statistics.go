package service

import (
	"math"
	"sort"
)

// Summary - описательная статистика по выборке
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// Summarize считает count/mean/min/max/stddev за один проход + один для дисперсии
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return Summary{
		Count:  len(values),
		Mean:   Mean(values),
		Min:    min,
		Max:    max,
		StdDev: StdDev(values),
	}
}

// Mean возвращает среднее; 0 для пустой выборки
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev - выборочное стандартное отклонение (n-1); 0 при n < 2
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Sorted возвращает отсортированную копию
func Sorted(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// Median по отсортированной выборке
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// NearestRankPercentile - процентиль методом nearest-rank с floor-индексом:
// index = floor(p/100 * n), но не больше n-1. Детерминирован для одинаковых данных.
func NearestRankPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(p / 100 * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// InterpolatedPercentile - линейная интерполяция между соседними рангами
func InterpolatedPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Pearson - коэффициент корреляции Пирсона.
// Ряды обрезаются до наименьшей длины; при нулевом знаменателе возвращается 0.
func Pearson(x, y []float64) (r float64, sampleSize int) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return 0, n
	}
	x, y = x[:n], y[:n]

	mx, my := Mean(x), Mean(y)
	var num, dx2, dy2 float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		num += dx * dy
		dx2 += dx * dx
		dy2 += dy * dy
	}

	den := math.Sqrt(dx2 * dy2)
	if den == 0 {
		return 0, n
	}
	return num / den, n
}
