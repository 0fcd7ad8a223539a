package valueobject

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFiniteValue возвращается для NaN и бесконечностей
var ErrNonFiniteValue = errors.New("metric value must be finite")

// MetricValue представляет значение метрики с необязательной единицей измерения (Value Object)
// Иммутабельный объект
type MetricValue struct {
	value float64
	unit  string
}

// NewMetricValue создает новый MetricValue с валидацией.
// Отрицательные значения допустимы: gauge и delta-счетчики могут уходить ниже нуля.
func NewMetricValue(value float64, unit string) (MetricValue, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MetricValue{}, ErrNonFiniteValue
	}

	return MetricValue{
		value: value,
		unit:  unit,
	}, nil
}

// Raw возвращает числовое значение
func (mv MetricValue) Raw() float64 {
	return mv.value
}

// Unit возвращает единицу измерения
func (mv MetricValue) Unit() string {
	return mv.unit
}

// String возвращает строковое представление
func (mv MetricValue) String() string {
	if mv.unit == "" {
		return fmt.Sprintf("%.2f", mv.value)
	}
	return fmt.Sprintf("%.2f %s", mv.value, mv.unit)
}

// Equals сравнивает два MetricValue
func (mv MetricValue) Equals(other MetricValue) bool {
	return mv.value == other.value && mv.unit == other.unit
}
