package dto

import (
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// SystemSnapshotDTO представляет snapshot системных метрик
// Используется для передачи через WebSocket
type SystemSnapshotDTO struct {
	Timestamp time.Time           `json:"timestamp"`
	Metrics   []SampleDTO         `json:"metrics"`
	Summary   *SnapshotSummaryDTO `json:"summary"`
}

// SnapshotSummaryDTO содержит сводную информацию
type SnapshotSummaryDTO struct {
	TotalMetrics  int    `json:"total_metrics"`
	CriticalCount int    `json:"critical_count"`
	WarningCount  int    `json:"warning_count"`
	OverallStatus string `json:"overall_status"` // "healthy", "warning", "critical"
}

// Пороги для процентных метрик в snapshot
const (
	snapshotWarningPercent  = 75.0
	snapshotCriticalPercent = 90.0
)

// NewSystemSnapshotDTO создает snapshot из слайса сэмплов
func NewSystemSnapshotDTO(samples []entity.Sample, at time.Time) *SystemSnapshotDTO {
	snapshot := &SystemSnapshotDTO{
		Timestamp: at,
		Metrics:   ToSampleDTOs(samples),
		Summary:   &SnapshotSummaryDTO{TotalMetrics: len(samples)},
	}

	for _, s := range samples {
		if s.Unit() != "%" {
			continue
		}
		switch {
		case s.Value() > snapshotCriticalPercent:
			snapshot.Summary.CriticalCount++
		case s.Value() > snapshotWarningPercent:
			snapshot.Summary.WarningCount++
		}
	}

	// Определяем общий статус
	switch {
	case snapshot.Summary.CriticalCount > 0:
		snapshot.Summary.OverallStatus = "critical"
	case snapshot.Summary.WarningCount > 0:
		snapshot.Summary.OverallStatus = "warning"
	default:
		snapshot.Summary.OverallStatus = "healthy"
	}

	return snapshot
}
