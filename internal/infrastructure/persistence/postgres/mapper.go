package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// SampleDBModel is a row of telemetry_samples.
type SampleDBModel struct {
	Name       string
	Kind       string
	Value      float64
	Unit       string
	Tags       []byte // JSON
	RecordedAt time.Time
}

// ToDBModel converts a sample into its row representation.
func ToDBModel(s entity.Sample) (SampleDBModel, error) {
	var tags []byte
	if t := s.Tags(); len(t) > 0 {
		var err error
		tags, err = json.Marshal(t)
		if err != nil {
			return SampleDBModel{}, fmt.Errorf("failed to marshal tags: %w", err)
		}
	}

	return SampleDBModel{
		Name:       s.Name(),
		Kind:       s.Kind().String(),
		Value:      s.Value(),
		Unit:       s.Unit(),
		Tags:       tags,
		RecordedAt: s.Timestamp(),
	}, nil
}

// ToEntity restores a sample from a row.
func ToEntity(model SampleDBModel) (entity.Sample, error) {
	var tags map[string]string
	if len(model.Tags) > 0 {
		if err := json.Unmarshal(model.Tags, &tags); err != nil {
			return entity.Sample{}, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	kind, err := valueobject.ParseMetricKind(model.Kind)
	if err != nil {
		return entity.Sample{}, err
	}
	value, err := valueobject.NewMetricValue(model.Value, model.Unit)
	if err != nil {
		return entity.Sample{}, err
	}

	return entity.ReconstructSample(model.Name, kind, value, tags, model.RecordedAt), nil
}

// ScanSampleRow scans name, kind, value, unit, tags, recorded_at.
func ScanSampleRow(row interface {
	Scan(dest ...interface{}) error
}) (SampleDBModel, error) {
	var model SampleDBModel
	var tags sql.NullString

	if err := row.Scan(
		&model.Name,
		&model.Kind,
		&model.Value,
		&model.Unit,
		&tags,
		&model.RecordedAt,
	); err != nil {
		return SampleDBModel{}, err
	}

	if tags.Valid {
		model.Tags = []byte(tags.String)
	}
	return model, nil
}
