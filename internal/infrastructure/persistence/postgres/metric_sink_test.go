package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

func newMockSink(t *testing.T) (*MetricSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewMetricSink(db), mock
}

func TestWriteBatchInsertsInOneTransaction(t *testing.T) {
	sink, mock := newMockSink(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a, _ := entity.NewSample("system.cpu.usage_percent", valueobject.Gauge, 42, "%", map[string]string{"host": "a"}, at)
	b, _ := entity.NewSample("http.requests", valueobject.Counter, 1, "", nil, at)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO telemetry_samples"))
	prep.ExpectExec().
		WithArgs("system.cpu.usage_percent", "gauge", 42.0, "%", `{"host":"a"}`, at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("http.requests", "counter", 1.0, "", nil, at).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := sink.WriteBatch(context.Background(), []entity.Sample{a, b}); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWriteBatchRollsBackOnInsertError(t *testing.T) {
	sink, mock := newMockSink(t)
	s, _ := entity.NewSample("queue.depth", valueobject.Gauge, 3, "", nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO telemetry_samples")).
		ExpectExec().
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := sink.WriteBatch(context.Background(), []entity.Sample{s}); err == nil {
		t.Fatal("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWriteBatchEmptyIsNoop(t *testing.T) {
	sink, mock := newMockSink(t)
	if err := sink.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("WriteBatch(nil) error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database calls: %v", err)
	}
}

func TestFindByRangeRestoresSamples(t *testing.T) {
	sink, mock := newMockSink(t)
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := valueobject.WindowEndingAt(end, time.Hour)

	rows := sqlmock.NewRows([]string{"name", "kind", "value", "unit", "tags", "recorded_at"}).
		AddRow("system.cpu.usage_percent", "gauge", 40.0, "%", `{"host":"a"}`, end.Add(-30*time.Minute)).
		AddRow("system.cpu.usage_percent", "gauge", 55.0, "%", nil, end.Add(-10*time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM telemetry_samples")).
		WithArgs("system.cpu.usage_percent", tr.Start(), tr.End(), 100).
		WillReturnRows(rows)

	samples, err := sink.FindByRange(context.Background(), "system.cpu.usage_percent", tr, 100)
	if err != nil {
		t.Fatalf("FindByRange() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Tags()["host"] != "a" {
		t.Errorf("expected host tag to survive, got %v", samples[0].Tags())
	}
	if samples[1].Value() != 55 || samples[1].Kind() != valueobject.Gauge {
		t.Errorf("unexpected second sample %+v", samples[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByRangeDefaultsLimit(t *testing.T) {
	sink, mock := newMockSink(t)
	tr := valueobject.WindowEndingAt(time.Now(), time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM telemetry_samples")).
		WithArgs("x", sqlmock.AnyArg(), sqlmock.AnyArg(), 10000).
		WillReturnRows(sqlmock.NewRows([]string{"name", "kind", "value", "unit", "tags", "recorded_at"}))

	samples, err := sink.FindByRange(context.Background(), "x", tr, 0)
	if err != nil {
		t.Fatalf("FindByRange() error = %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(samples))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	sink, mock := newMockSink(t)
	cutoff := time.Date(2026, 2, 22, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM telemetry_samples WHERE recorded_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))

	deleted, err := sink.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 17 {
		t.Fatalf("expected 17 deleted rows, got %d", deleted)
	}
}
