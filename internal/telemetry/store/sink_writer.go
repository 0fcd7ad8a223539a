package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/repository"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// SinkWriterConfig controls the async hand-off to the external sink.
type SinkWriterConfig struct {
	QueueSize     int
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func (c *SinkWriterConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// SinkWriter batches samples on a fixed worker pool and writes them to a
// MetricSink. Enqueue never blocks: when the queue is full the sample is
// dropped from the sink path (it is still in the in-memory store).
type SinkWriter struct {
	sink    repository.MetricSink
	cfg     SinkWriterConfig
	queue   chan entity.Sample
	stopCh  chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
	errors  atomic.Uint64
	written atomic.Uint64
	metrics port.SelfMetrics
	logger  *logger.Logger
}

// NewSinkWriter starts the worker pool.
func NewSinkWriter(sink repository.MetricSink, cfg SinkWriterConfig, metrics port.SelfMetrics, log *logger.Logger) *SinkWriter {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = port.NopSelfMetrics{}
	}

	w := &SinkWriter{
		sink:    sink,
		cfg:     cfg,
		queue:   make(chan entity.Sample, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		metrics: metrics,
		logger:  log,
	}

	for i := 0; i < cfg.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	return w
}

// Enqueue hands a sample to the workers. It reports false when the sample was
// dropped because the writer is closed or the queue is full.
func (w *SinkWriter) Enqueue(sample entity.Sample) bool {
	if w.closed.Load() {
		w.drop(1)
		return false
	}

	select {
	case w.queue <- sample:
		return true
	default:
		w.drop(1)
		return false
	}
}

func (w *SinkWriter) drop(n int) {
	total := w.dropped.Add(uint64(n))
	w.metrics.SinkSamplesDropped(n)
	// log the first drop and then every 1000th to avoid flooding
	if total == 1 || total%1000 == 0 {
		w.logger.Warn("Sink queue full, dropping samples", "sink", w.sink.Name(), "dropped_total", total)
	}
}

func (w *SinkWriter) worker() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]entity.Sample, 0, w.cfg.BatchSize)

	for {
		select {
		case sample := <-w.queue:
			batch = append(batch, sample)
			if len(batch) >= w.cfg.BatchSize {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			batch = w.flush(batch)
		case <-w.stopCh:
			// drain whatever is still queued, then exit
			for {
				select {
				case sample := <-w.queue:
					batch = append(batch, sample)
					if len(batch) >= w.cfg.BatchSize {
						batch = w.flush(batch)
					}
				default:
					w.flush(batch)
					return
				}
			}
		}
	}
}

func (w *SinkWriter) flush(batch []entity.Sample) []entity.Sample {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	if err := w.sink.WriteBatch(ctx, batch); err != nil {
		w.errors.Add(1)
		w.metrics.SinkWriteFailed(w.sink.Name())
		w.logger.Error("Failed to write samples to sink", err,
			"sink", w.sink.Name(),
			"batch_size", len(batch))
	} else {
		w.written.Add(uint64(len(batch)))
	}

	return batch[:0]
}

// Close stops accepting samples, drains the queue and waits for the workers
// until ctx is done.
func (w *SinkWriter) Close(ctx context.Context) error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("Sink writer did not drain before deadline", "sink", w.sink.Name(), "pending", len(w.queue))
		return ctx.Err()
	}
}

func (w *SinkWriter) Dropped() uint64 { return w.dropped.Load() }

func (w *SinkWriter) Errors() uint64 { return w.errors.Load() }

func (w *SinkWriter) Written() uint64 { return w.written.Load() }

// Sink returns the underlying sink, used by health checks.
func (w *SinkWriter) Sink() repository.MetricSink { return w.sink }
