package entity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// ErrInvalidRule возвращается при регистрации некорректного правила
var ErrInvalidRule = errors.New("invalid threshold rule")

// ThresholdRule описывает пороговое правило
type ThresholdRule struct {
	MetricName      string               `json:"metric_name"`
	Operator        valueobject.Operator `json:"operator"`
	Threshold       float64              `json:"threshold"`
	ConfirmDuration time.Duration        `json:"confirm_duration"`
	Severity        valueobject.Severity `json:"severity"`
	Enabled         bool                 `json:"enabled"`
	Description     string               `json:"description,omitempty"`
}

// ID детерминированно выводится из (metric, operator, threshold),
// поэтому повторная регистрация того же правила обнаруживается.
func (r ThresholdRule) ID() string {
	return fmt.Sprintf("threshold_%s_%s_%s",
		r.MetricName, r.Operator, strconv.FormatFloat(r.Threshold, 'g', -1, 64))
}

// Validate проверяет правило перед регистрацией
func (r ThresholdRule) Validate() error {
	if r.MetricName == "" {
		return fmt.Errorf("%w: metric name is required", ErrInvalidRule)
	}
	if err := r.Operator.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := r.Severity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if r.ConfirmDuration < 0 {
		return fmt.Errorf("%w: confirm duration cannot be negative", ErrInvalidRule)
	}
	return nil
}

// Violated сообщает, нарушает ли значение правило
func (r ThresholdRule) Violated(value float64) bool {
	return r.Operator.Compare(value, r.Threshold)
}
