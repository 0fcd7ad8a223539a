package entity

import "time"

// PerformanceRecord представляет одно измерение операции
type PerformanceRecord struct {
	Operation string
	Duration  float64 // ms
	Success   bool
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// NewPerformanceRecord создает запись с копией метаданных
func NewPerformanceRecord(operation string, durationMs float64, success bool, metadata map[string]interface{}, at time.Time) PerformanceRecord {
	md := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return PerformanceRecord{
		Operation: operation,
		Duration:  durationMs,
		Success:   success,
		Timestamp: at.UTC(),
		Metadata:  md,
	}
}
