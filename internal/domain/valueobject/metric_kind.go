package valueobject

import (
	"errors"
	"strings"
)

// MetricKind представляет тип метрики (Value Object)
type MetricKind string

const (
	Counter   MetricKind = "counter"
	Gauge     MetricKind = "gauge"
	Timer     MetricKind = "timer"
	Histogram MetricKind = "histogram"
)

// ErrInvalidMetricKind возвращается для неизвестного типа метрики
var ErrInvalidMetricKind = errors.New("invalid metric kind")

// Validate проверяет валидность типа метрики
func (k MetricKind) Validate() error {
	switch k {
	case Counter, Gauge, Timer, Histogram:
		return nil
	default:
		return ErrInvalidMetricKind
	}
}

// String возвращает строковое представление типа метрики
func (k MetricKind) String() string {
	return string(k)
}

// ParseMetricKind разбирает тип метрики без учета регистра
func ParseMetricKind(raw string) (MetricKind, error) {
	k := MetricKind(strings.ToLower(strings.TrimSpace(raw)))
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

// AllMetricKinds возвращает список всех допустимых типов метрик
func AllMetricKinds() []MetricKind {
	return []MetricKind{Counter, Gauge, Timer, Histogram}
}
