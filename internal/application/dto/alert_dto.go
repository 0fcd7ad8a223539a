package dto

import (
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// AlertDTO представляет алерт для API и каналов уведомлений
type AlertDTO struct {
	ID             string                 `json:"alert_id"`
	Severity       string                 `json:"severity"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Source         string                 `json:"source"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Resolved       bool                   `json:"resolved"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	ResolutionNote string                 `json:"resolution_note,omitempty"`
}

// FromAlertSnapshot конвертирует snapshot алерта в DTO
func FromAlertSnapshot(a entity.AlertSnapshot) *AlertDTO {
	return &AlertDTO{
		ID:             a.ID,
		Severity:       a.Severity.String(),
		Title:          a.Title,
		Message:        a.Message,
		Source:         a.Source,
		Timestamp:      a.CreatedAt,
		Metadata:       a.Metadata,
		Resolved:       a.Resolved,
		ResolvedAt:     a.ResolvedAt,
		ResolutionNote: a.ResolutionNote,
	}
}

// ToAlertDTOs конвертирует слайс snapshot'ов
func ToAlertDTOs(alerts []entity.AlertSnapshot) []*AlertDTO {
	dtos := make([]*AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = FromAlertSnapshot(a)
	}
	return dtos
}

// CreateAlertRequest - тело запроса ручного создания алерта
type CreateAlertRequest struct {
	Severity string                 `json:"severity"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Source   string                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ResolveAlertRequest - тело запроса закрытия алерта
type ResolveAlertRequest struct {
	ID   string `json:"alert_id"`
	Note string `json:"note"`
}

// ThresholdRuleRequest - тело запроса регистрации правила
type ThresholdRuleRequest struct {
	MetricName      string  `json:"metric_name"`
	Operator        string  `json:"operator"`
	Threshold       float64 `json:"threshold"`
	ConfirmDuration string  `json:"confirm_duration"`
	Severity        string  `json:"severity"`
	Enabled         *bool   `json:"enabled,omitempty"`
	Description     string  `json:"description,omitempty"`
}
