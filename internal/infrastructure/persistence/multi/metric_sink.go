// Package multi fans sample batches out to several sinks.
package multi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/repository"
)

// MetricSink writes every batch to all sinks concurrently. A failing sink
// does not prevent the others from receiving the batch.
type MetricSink struct {
	sinks []repository.MetricSink
}

func NewMetricSink(sinks ...repository.MetricSink) *MetricSink {
	return &MetricSink{sinks: sinks}
}

func (m *MetricSink) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m *MetricSink) Sinks() []repository.MetricSink {
	return m.sinks
}

func (m *MetricSink) WriteBatch(ctx context.Context, samples []entity.Sample) error {
	return m.each(func(s repository.MetricSink) error {
		return s.WriteBatch(ctx, samples)
	})
}

func (m *MetricSink) Ping(ctx context.Context) error {
	return m.each(func(s repository.MetricSink) error {
		return s.Ping(ctx)
	})
}

func (m *MetricSink) each(fn func(repository.MetricSink) error) error {
	errs := make([]error, len(m.sinks))
	var wg sync.WaitGroup
	for i, s := range m.sinks {
		wg.Add(1)
		go func(i int, s repository.MetricSink) {
			defer wg.Done()
			if err := fn(s); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}
