package dto

import "time"

// DependencyStatusDTO - результат проверки одной внешней зависимости
type DependencyStatusDTO struct {
	Name           string    `json:"name"`
	Up             bool      `json:"up"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// ExportResultDTO описывает результат выгрузки
type ExportResultDTO struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Key         string `json:"key,omitempty"`
	URL         string `json:"url,omitempty"`
}
