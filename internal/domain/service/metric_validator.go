package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// MetricValidator предоставляет сервисы для валидации сэмплов (Domain Service)
type MetricValidator struct {
	maxFutureSkew time.Duration
}

// NewMetricValidator создает новый MetricValidator
func NewMetricValidator() *MetricValidator {
	return &MetricValidator{maxFutureSkew: time.Minute}
}

// Validate проверяет сэмпл, пришедший извне (например, из sink или API)
func (v *MetricValidator) Validate(s entity.Sample, now time.Time) error {
	if strings.ContainsAny(s.Name(), " \t\n") {
		return errors.New("metric name cannot contain whitespace")
	}

	if err := s.Kind().Validate(); err != nil {
		return err
	}

	// Проверка, что сэмпл не из будущего
	if s.Timestamp().After(now.Add(v.maxFutureSkew)) {
		return errors.New("timestamp cannot be in the future")
	}

	return nil
}

// ValidateBatch валидирует группу сэмплов
func (v *MetricValidator) ValidateBatch(samples []entity.Sample, now time.Time) []error {
	var errs []error

	for i, s := range samples {
		if err := v.Validate(s, now); err != nil {
			errs = append(errs, fmt.Errorf("sample %d (%s): %w", i, s.Name(), err))
		}
	}

	return errs
}

// IsReasonable проверяет, находится ли значение в разумных пределах для своей единицы
func (v *MetricValidator) IsReasonable(s entity.Sample) bool {
	switch s.Unit() {
	case "%":
		// Процентные значения должны быть от 0 до 100
		return s.Value() >= 0 && s.Value() <= 100
	case "ms", "bytes":
		return s.Value() >= 0
	default:
		return true
	}
}
