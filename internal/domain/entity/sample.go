package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

const maxSampleNameLength = 255

// ErrInvalidSample возвращается при нарушении инвариантов сэмпла
var ErrInvalidSample = errors.New("invalid sample")

// Sample представляет одно наблюдение метрики (Value Entity)
// Иммутабелен после создания: сеттеров нет, теги копируются на входе и выходе
type Sample struct {
	name      string
	kind      valueobject.MetricKind
	value     valueobject.MetricValue
	tags      map[string]string
	timestamp time.Time
}

// NewSample создает новый сэмпл (Factory Method)
func NewSample(
	name string,
	kind valueobject.MetricKind,
	value float64,
	unit string,
	tags map[string]string,
	timestamp time.Time,
) (Sample, error) {
	if name == "" || len(name) > maxSampleNameLength {
		return Sample{}, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidSample, maxSampleNameLength)
	}

	if err := kind.Validate(); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}

	mv, err := valueobject.NewMetricValue(value, unit)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrInvalidSample, name, err)
	}

	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return Sample{
		name:      name,
		kind:      kind,
		value:     mv,
		tags:      copyTags(tags),
		timestamp: timestamp.UTC(),
	}, nil
}

// ReconstructSample восстанавливает сэмпл из хранилища (для Repository)
func ReconstructSample(
	name string,
	kind valueobject.MetricKind,
	value valueobject.MetricValue,
	tags map[string]string,
	timestamp time.Time,
) Sample {
	return Sample{
		name:      name,
		kind:      kind,
		value:     value,
		tags:      copyTags(tags),
		timestamp: timestamp.UTC(),
	}
}

// Name возвращает имя метрики
func (s Sample) Name() string {
	return s.name
}

// Kind возвращает тип метрики
func (s Sample) Kind() valueobject.MetricKind {
	return s.kind
}

// Value возвращает числовое значение
func (s Sample) Value() float64 {
	return s.value.Raw()
}

// Unit возвращает единицу измерения (может быть пустой)
func (s Sample) Unit() string {
	return s.value.Unit()
}

// Tags возвращает копию тегов
func (s Sample) Tags() map[string]string {
	return copyTags(s.tags)
}

// Tag возвращает значение одного тега без копирования всей карты
func (s Sample) Tag(key string) (string, bool) {
	v, ok := s.tags[key]
	return v, ok
}

// Timestamp возвращает время наблюдения (UTC)
func (s Sample) Timestamp() time.Time {
	return s.timestamp
}

// Age возвращает возраст сэмпла относительно now
func (s Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.timestamp)
}

func copyTags(tags map[string]string) map[string]string {
	result := make(map[string]string, len(tags))
	for k, v := range tags {
		result[k] = v
	}
	return result
}
