package dto

import (
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// SampleDTO представляет сэмпл для передачи между слоями
type SampleDTO struct {
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// FromSample конвертирует Domain Entity в DTO
func FromSample(s entity.Sample) SampleDTO {
	return SampleDTO{
		Name:      s.Name(),
		Kind:      s.Kind().String(),
		Value:     s.Value(),
		Unit:      s.Unit(),
		Tags:      s.Tags(),
		Timestamp: s.Timestamp(),
	}
}

// ToSampleDTOs конвертирует слайс Entity в слайс DTO
func ToSampleDTOs(samples []entity.Sample) []SampleDTO {
	dtos := make([]SampleDTO, len(samples))
	for i, s := range samples {
		dtos[i] = FromSample(s)
	}
	return dtos
}

// SampleHistoryDTO представляет исторические данные из sink с агрегатами
type SampleHistoryDTO struct {
	Name    string      `json:"name"`
	From    time.Time   `json:"from"`
	To      time.Time   `json:"to"`
	Samples []SampleDTO `json:"samples"`
	Count   int         `json:"count"`
	Average float64     `json:"average"`
	Min     float64     `json:"min"`
	Max     float64     `json:"max"`
	P95     float64     `json:"p95"`
	Cached  bool        `json:"cached"`
}
