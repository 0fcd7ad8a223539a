package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	_ "github.com/lib/pq"
)

// Schema creates the samples table and its lookup index.
const Schema = `
CREATE TABLE IF NOT EXISTS telemetry_samples (
	id          BIGSERIAL PRIMARY KEY,
	name        VARCHAR(255) NOT NULL,
	kind        VARCHAR(16) NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	unit        VARCHAR(32) NOT NULL DEFAULT '',
	tags        JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_telemetry_samples_name_time
	ON telemetry_samples (name, recorded_at DESC);
`

const insertSample = `
	INSERT INTO telemetry_samples (name, kind, value, unit, tags, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// MetricSink implements repository.MetricSink and repository.MetricHistory
// on PostgreSQL.
type MetricSink struct {
	db *sql.DB
}

func NewMetricSink(db *sql.DB) *MetricSink {
	return &MetricSink{db: db}
}

// Open connects with the pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *MetricSink) Name() string { return "postgres" }

// EnsureSchema creates the samples table when missing.
func (s *MetricSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteBatch inserts samples in one transaction.
func (s *MetricSink) WriteBatch(ctx context.Context, samples []entity.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, insertSample)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, sample := range samples {
		model, err := ToDBModel(sample)
		if err != nil {
			return fmt.Errorf("failed to convert sample to DB model: %w", err)
		}

		var tags interface{}
		if len(model.Tags) > 0 {
			tags = string(model.Tags)
		}
		if _, err := stmt.ExecContext(ctx,
			model.Name,
			model.Kind,
			model.Value,
			model.Unit,
			tags,
			model.RecordedAt,
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByRange returns samples of one metric, oldest first. An unbounded
// range has no lower limit.
func (s *MetricSink) FindByRange(ctx context.Context, name string, tr valueobject.TimeRange, limit int) ([]entity.Sample, error) {
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT name, kind, value, unit, tags, recorded_at
		FROM (
			SELECT name, kind, value, unit, tags, recorded_at
			FROM telemetry_samples
			WHERE name = $1 AND recorded_at >= $2 AND recorded_at <= $3
			ORDER BY recorded_at DESC
			LIMIT $4
		) recent
		ORDER BY recorded_at ASC
	`

	from := tr.Start()
	if tr.Unbounded() {
		from = time.Unix(0, 0).UTC()
	}

	rows, err := s.db.QueryContext(ctx, query, name, from, tr.End(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []entity.Sample
	for rows.Next() {
		model, err := ScanSampleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		sample, err := ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to convert to entity: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return samples, nil
}

// DeleteOlderThan removes samples recorded before cutoff.
func (s *MetricSink) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM telemetry_samples WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old samples: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func (s *MetricSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MetricSink) Close() error {
	return s.db.Close()
}
