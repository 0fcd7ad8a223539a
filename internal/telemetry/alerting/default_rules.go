package alerting

import (
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// Thresholds are the configured limits used to build the default rules.
type Thresholds struct {
	CPUPercent         float64
	MemoryPercent      float64
	DiskPercent        float64
	ResponseTimeMs     float64
	DatabaseResponseMs float64
}

// DefaultRules returns the built-in host and latency rules.
func DefaultRules(t Thresholds) []entity.ThresholdRule {
	return []entity.ThresholdRule{
		{
			MetricName:      "system.cpu.usage_percent",
			Operator:        valueobject.GreaterOrEqual,
			Threshold:       t.CPUPercent,
			ConfirmDuration: 5 * time.Minute,
			Severity:        valueobject.SeverityHigh,
			Enabled:         true,
			Description:     "High CPU usage",
		},
		{
			MetricName:      "system.memory.usage_percent",
			Operator:        valueobject.GreaterOrEqual,
			Threshold:       t.MemoryPercent,
			ConfirmDuration: 5 * time.Minute,
			Severity:        valueobject.SeverityHigh,
			Enabled:         true,
			Description:     "High memory usage",
		},
		{
			MetricName:      "system.disk.usage_percent",
			Operator:        valueobject.GreaterOrEqual,
			Threshold:       t.DiskPercent,
			ConfirmDuration: 10 * time.Minute,
			Severity:        valueobject.SeverityCritical,
			Enabled:         true,
			Description:     "Disk almost full",
		},
		{
			MetricName:      "http.request.duration",
			Operator:        valueobject.GreaterOrEqual,
			Threshold:       t.ResponseTimeMs,
			ConfirmDuration: 3 * time.Minute,
			Severity:        valueobject.SeverityMedium,
			Enabled:         true,
			Description:     "Slow HTTP responses",
		},
		{
			MetricName:      "database.health_check.response_time",
			Operator:        valueobject.GreaterOrEqual,
			Threshold:       t.DatabaseResponseMs,
			ConfirmDuration: 2 * time.Minute,
			Severity:        valueobject.SeverityHigh,
			Enabled:         true,
			Description:     "Slow database health check",
		},
	}
}
