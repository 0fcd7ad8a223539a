// Package store keeps the bounded in-memory time series every other
// pipeline component reads from or writes to.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/ring"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const DefaultCapacity = 10000

// Config holds construction parameters for MetricStore.
type Config struct {
	Capacity int
	// Now is the clock used for query windows and sweeps. Defaults to time.Now.
	Now func() time.Time
}

// Stats is a point-in-time view of store counters.
type Stats struct {
	Size          int    `json:"size"`
	Capacity      int    `json:"capacity"`
	TotalRecorded uint64 `json:"total_recorded"`
	Evicted       uint64 `json:"evicted"`
	Swept         uint64 `json:"swept"`
	SinkWritten   uint64 `json:"sink_written"`
	SinkDropped   uint64 `json:"sink_dropped"`
	SinkErrors    uint64 `json:"sink_errors"`
}

// MetricStore is a thread-safe FIFO ring buffer of samples. Record never
// blocks on I/O: sink writes are handed to the SinkWriter.
type MetricStore struct {
	mu      sync.RWMutex
	buf     *ring.Buffer[entity.Sample]
	total   uint64
	evicted uint64
	swept   uint64

	writer  *SinkWriter
	metrics port.SelfMetrics
	now     func() time.Time
	logger  *logger.Logger
}

// NewMetricStore builds a store. writer may be nil, in which case samples are
// kept in memory only.
func NewMetricStore(cfg Config, writer *SinkWriter, metrics port.SelfMetrics, log *logger.Logger) *MetricStore {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if metrics == nil {
		metrics = port.NopSelfMetrics{}
	}

	return &MetricStore{
		buf:     ring.New[entity.Sample](cfg.Capacity),
		writer:  writer,
		metrics: metrics,
		now:     cfg.Now,
		logger:  log,
	}
}

// Record appends a sample, evicting the oldest one when full.
func (s *MetricStore) Record(sample entity.Sample) {
	s.mu.Lock()
	evicted := s.buf.Push(sample)
	s.total++
	if evicted {
		s.evicted++
	}
	s.mu.Unlock()

	s.metrics.SampleRecorded(sample.Kind().String())
	if evicted {
		s.metrics.SampleEvicted()
	}

	if s.writer != nil {
		s.writer.Enqueue(sample)
	}
}

// RecordValue validates and records a sample stamped with the store clock.
func (s *MetricStore) RecordValue(name string, kind valueobject.MetricKind, value float64, unit string, tags map[string]string) error {
	sample, err := entity.NewSample(name, kind, value, unit, tags, s.now())
	if err != nil {
		return err
	}
	s.Record(sample)
	return nil
}

// Query returns a copy of the samples whose name contains nameFilter and whose
// timestamp lies within [now-window, now]. An empty filter matches every name;
// a non-positive window disables the time bound.
func (s *MetricStore) Query(nameFilter string, window time.Duration) []entity.Sample {
	return s.QueryRange(nameFilter, valueobject.WindowEndingAt(s.now(), window))
}

// QueryRange is Query with an explicit time range.
func (s *MetricStore) QueryRange(nameFilter string, tr valueobject.TimeRange) []entity.Sample {
	return s.collect(func(sample entity.Sample) bool {
		if nameFilter != "" && !strings.Contains(sample.Name(), nameFilter) {
			return false
		}
		return tr.Contains(sample.Timestamp())
	})
}

// SamplesFor returns samples with exactly the given name within the window.
func (s *MetricStore) SamplesFor(name string, window time.Duration) []entity.Sample {
	tr := valueobject.WindowEndingAt(s.now(), window)
	return s.collect(func(sample entity.Sample) bool {
		return sample.Name() == name && tr.Contains(sample.Timestamp())
	})
}

// Latest returns the most recently inserted sample with exactly this name.
func (s *MetricStore) Latest(name string) (entity.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found  entity.Sample
		exists bool
	)
	s.buf.EachReverse(func(sample entity.Sample) bool {
		if sample.Name() == name {
			found, exists = sample, true
			return false
		}
		return true
	})
	return found, exists
}

// Names returns the distinct metric names currently held.
func (s *MetricStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	names := make([]string, 0)
	s.buf.Each(func(sample entity.Sample) bool {
		if _, ok := seen[sample.Name()]; !ok {
			seen[sample.Name()] = struct{}{}
			names = append(names, sample.Name())
		}
		return true
	})
	return names
}

// Sweep drops samples older than maxAge and returns how many were removed.
func (s *MetricStore) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	removed := s.buf.Retain(func(sample entity.Sample) bool {
		return !sample.Timestamp().Before(cutoff)
	})
	s.swept += uint64(removed)
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Swept expired samples", "removed", removed, "max_age", maxAge)
	}
	return removed
}

func (s *MetricStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Len()
}

func (s *MetricStore) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Size:          s.buf.Len(),
		Capacity:      s.buf.Cap(),
		TotalRecorded: s.total,
		Evicted:       s.evicted,
		Swept:         s.swept,
	}
	s.mu.RUnlock()

	if s.writer != nil {
		st.SinkWritten = s.writer.Written()
		st.SinkDropped = s.writer.Dropped()
		st.SinkErrors = s.writer.Errors()
	}
	return st
}

// Now exposes the store clock so readers align their windows with it.
func (s *MetricStore) Now() time.Time {
	return s.now()
}

func (s *MetricStore) collect(match func(entity.Sample) bool) []entity.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Sample, 0)
	s.buf.Each(func(sample entity.Sample) bool {
		if match(sample) {
			out = append(out, sample)
		}
		return true
	})
	return out
}
