// Package noop provides a sink that discards samples, used when no
// external storage is configured.
package noop

import (
	"context"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

type MetricSink struct{}

func NewMetricSink() MetricSink { return MetricSink{} }

func (MetricSink) Name() string { return "noop" }

func (MetricSink) WriteBatch(context.Context, []entity.Sample) error { return nil }

func (MetricSink) Ping(context.Context) error { return nil }
