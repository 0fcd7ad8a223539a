// Package telemetry composes the metric store, performance tracker, alert
// engine, notification dispatcher, collector scheduler and analytics into a
// single in-process pipeline.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/repository"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/service"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/alerting"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/analytics"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/collection"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/notify"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/performance"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/store"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// ErrHistoryUnavailable is returned by GetHistory when the sink cannot be
// queried.
var ErrHistoryUnavailable = errors.New("metric history is not available")

const errorMetric = "pipeline.errors"

// Options configures a Pipeline. Zero values fall back to component defaults.
type Options struct {
	Store      store.Config
	Sink       repository.MetricSink
	SinkWriter store.SinkWriterConfig
	// History is queried by GetHistory and swept by SinkRetention.
	History       repository.MetricHistory
	SinkRetention time.Duration

	LedgerSize  int
	Retention   time.Duration
	Alerting    alerting.Config
	Notify      notify.Config
	StopTimeout time.Duration

	Archive port.AlertArchive
	Metrics port.SelfMetrics
	Probes  []port.DependencyProbe

	Now func() time.Time
}

// Pipeline owns every registry. It is built once and injected where needed.
type Pipeline struct {
	store      *store.MetricStore
	writer     *store.SinkWriter
	tracker    *performance.Tracker
	engine     *alerting.Engine
	dispatcher *notify.Dispatcher
	scheduler  *collection.Scheduler
	visualizer *analytics.Visualizer

	sink    repository.MetricSink
	history repository.MetricHistory
	probes  []port.DependencyProbe

	retention     time.Duration
	sinkRetention time.Duration
	sweepMu       sync.Mutex
	lastSinkSweep time.Time

	stopTimeout time.Duration
	metrics     port.SelfMetrics
	now         func() time.Time
	startedAt   time.Time
	logger      *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// New wires the components together. Background work starts only through
// StartCollection and StartBackgroundTasks.
func New(opts Options, log *logger.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = port.NopSelfMetrics{}
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = collection.DefaultStopTimeout
	}
	opts.Store.Now = opts.Now
	opts.Alerting.Now = opts.Now
	opts.Notify.Now = opts.Now

	p := &Pipeline{
		sink:          opts.Sink,
		history:       opts.History,
		probes:        opts.Probes,
		retention:     opts.Retention,
		sinkRetention: opts.SinkRetention,
		stopTimeout:   opts.StopTimeout,
		metrics:       opts.Metrics,
		now:           opts.Now,
		startedAt:     opts.Now(),
		logger:        log,
	}

	if opts.Sink != nil {
		p.writer = store.NewSinkWriter(opts.Sink, opts.SinkWriter, opts.Metrics, log)
	}
	p.store = store.NewMetricStore(opts.Store, p.writer, opts.Metrics, log)
	p.tracker = performance.NewTracker(opts.LedgerSize, p.store, opts.Now, log)
	p.dispatcher = notify.NewDispatcher(opts.Notify, opts.Metrics, log)
	p.engine = alerting.NewEngine(opts.Alerting, p.store, p.tracker, p.dispatcher, opts.Archive, opts.Metrics, log)
	p.scheduler = collection.NewScheduler(opts.StopTimeout, p.store, opts.Metrics, log)
	p.visualizer = analytics.NewVisualizer(p.store, log)

	p.engine.AddHousekeeping(p.sweep)
	return p
}

func (p *Pipeline) Store() *store.MetricStore { return p.store }
func (p *Pipeline) Tracker() *performance.Tracker { return p.tracker }
func (p *Pipeline) Engine() *alerting.Engine { return p.engine }
func (p *Pipeline) Dispatcher() *notify.Dispatcher { return p.dispatcher }
func (p *Pipeline) Scheduler() *collection.Scheduler { return p.scheduler }
func (p *Pipeline) Visualizer() *analytics.Visualizer { return p.visualizer }
func (p *Pipeline) Sink() repository.MetricSink { return p.sink }
func (p *Pipeline) History() repository.MetricHistory { return p.history }
func (p *Pipeline) Probes() []port.DependencyProbe { return p.probes }
func (p *Pipeline) StartedAt() time.Time { return p.startedAt }

// guard must be deferred directly by every public entry point.
func (p *Pipeline) guard(op string) {
	if r := recover(); r != nil {
		p.logger.Error("Pipeline operation panicked", fmt.Errorf("%v", r), "operation", op)
		p.recordError(op)
	}
}

func (p *Pipeline) recordError(component string) {
	_ = p.store.RecordValue(errorMetric, valueobject.Counter, 1, "count", map[string]string{"component": component})
}

func (p *Pipeline) record(name string, kind valueobject.MetricKind, value float64, unit string, tags map[string]string) {
	if err := p.store.RecordValue(name, kind, value, unit, tags); err != nil {
		p.logger.Warn("Sample rejected", "metric", name, "kind", kind, "error", err)
	}
}

// RecordCounter records a counter increment of value.
func (p *Pipeline) RecordCounter(name string, value float64, tags map[string]string) {
	defer p.guard("record_counter")
	p.record(name, valueobject.Counter, value, "count", tags)
}

// Increment records a counter increment of one.
func (p *Pipeline) Increment(name string, tags map[string]string) {
	defer p.guard("increment")
	p.record(name, valueobject.Counter, 1, "count", tags)
}

func (p *Pipeline) RecordGauge(name string, value float64, unit string, tags map[string]string) {
	defer p.guard("record_gauge")
	p.record(name, valueobject.Gauge, value, unit, tags)
}

// RecordTimer records a duration in milliseconds.
func (p *Pipeline) RecordTimer(name string, durationMs float64, tags map[string]string) {
	defer p.guard("record_timer")
	p.record(name, valueobject.Timer, durationMs, "ms", tags)
}

func (p *Pipeline) RecordHistogram(name string, value float64, unit string, tags map[string]string) {
	defer p.guard("record_histogram")
	p.record(name, valueobject.Histogram, value, unit, tags)
}

// RecordSample stores an already constructed sample.
func (p *Pipeline) RecordSample(sample entity.Sample) {
	defer p.guard("record_sample")
	p.store.Record(sample)
}

func (p *Pipeline) TrackPerformance(operation string, durationMs float64, success bool, metadata map[string]interface{}) {
	defer p.guard("track_performance")
	if err := p.tracker.Track(operation, durationMs, success, metadata); err != nil {
		p.recordError("performance")
	}
}

// CreateAlert returns the new alert id, or an empty string when the
// severity is invalid.
func (p *Pipeline) CreateAlert(severity valueobject.Severity, title, message, source string, metadata map[string]interface{}) (id string) {
	defer p.guard("create_alert")
	snap, err := p.engine.CreateAlert(severity, title, message, source, metadata)
	if err != nil {
		p.logger.Warn("Alert rejected", "severity", severity, "error", err)
		return ""
	}
	return snap.ID
}

func (p *Pipeline) ResolveAlert(id, note string) (ok bool) {
	defer p.guard("resolve_alert")
	return p.engine.ResolveAlert(id, note)
}

func (p *Pipeline) AddThresholdRule(rule entity.ThresholdRule) (id string, err error) {
	defer p.guard("add_rule")
	return p.engine.AddRule(rule)
}

func (p *Pipeline) RemoveThresholdRule(id string) (ok bool) {
	defer p.guard("remove_rule")
	return p.engine.RemoveRule(id)
}

func (p *Pipeline) ThresholdRules() (rules []entity.ThresholdRule) {
	defer p.guard("list_rules")
	return p.engine.Rules()
}

func (p *Pipeline) GetAlerts(filter alerting.Filter) (alerts []*dto.AlertDTO) {
	defer p.guard("get_alerts")
	return dto.ToAlertDTOs(p.engine.Alerts(filter))
}

// GetMetrics returns samples whose name contains filter within window.
func (p *Pipeline) GetMetrics(filter string, window time.Duration) (samples []dto.SampleDTO) {
	defer p.guard("get_metrics")
	return dto.ToSampleDTOs(p.store.Query(filter, window))
}

func (p *Pipeline) GetPerformanceStats(operation string, window time.Duration) (stats map[string]performance.OperationStats) {
	defer p.guard("get_performance_stats")
	return p.tracker.Stats(operation, window)
}

func (p *Pipeline) GetTimeSeries(names []string, window time.Duration, interval valueobject.Interval) (ts *dto.TimeSeriesDTO) {
	defer p.guard("get_time_series")
	return p.visualizer.TimeSeries(names, window, interval)
}

func (p *Pipeline) GetHistogram(name string, window time.Duration, bins int) (h *dto.HistogramDTO) {
	defer p.guard("get_histogram")
	return p.visualizer.Histogram(name, window, bins)
}

func (p *Pipeline) GetCorrelation(names []string, window time.Duration) (c *dto.CorrelationDTO) {
	defer p.guard("get_correlation")
	return p.visualizer.Correlation(names, window)
}

func (p *Pipeline) GetAnomalies(name string, window time.Duration, sensitivity float64) (r *dto.AnomalyReportDTO) {
	defer p.guard("get_anomalies")
	return p.visualizer.Anomalies(name, window, sensitivity)
}

func (p *Pipeline) GetSummary(window time.Duration) (summary []dto.MetricSummaryDTO) {
	defer p.guard("get_summary")
	return p.visualizer.Summary(window)
}

func (p *Pipeline) GetTopMetrics(window time.Duration, limit int) (top []service.NameCount) {
	defer p.guard("get_top_metrics")
	return p.visualizer.TopMetrics(window, limit)
}

// Export returns the rendered payload and its content type.
func (p *Pipeline) Export(names []string, window time.Duration, interval valueobject.Interval, format string) (data []byte, contentType string, err error) {
	defer p.guard("export")
	return p.visualizer.Export(names, window, interval, format)
}

// GetHistory reads samples of one metric from the external sink.
func (p *Pipeline) GetHistory(ctx context.Context, name string, tr valueobject.TimeRange, limit int) (samples []entity.Sample, err error) {
	defer p.guard("get_history")
	if p.history == nil {
		return nil, ErrHistoryUnavailable
	}
	samples, err = p.history.FindByRange(ctx, name, tr, limit)
	if err != nil {
		p.recordError("history")
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return samples, nil
}

// RegisterChannel adds a notification channel. Invalid configs are
// returned and leave other channels untouched.
func (p *Pipeline) RegisterChannel(name string, ch notify.Channel, cfg entity.ChannelConfig) (err error) {
	defer p.guard("register_channel")
	return p.dispatcher.Register(name, ch, cfg)
}

func (p *Pipeline) TestChannel(ctx context.Context, name string) (err error) {
	defer p.guard("test_channel")
	return p.dispatcher.TestChannel(ctx, name)
}

func (p *Pipeline) RegisterCollector(name string, fn collection.Func, interval time.Duration) (err error) {
	defer p.guard("register_collector")
	return p.scheduler.Register(name, fn, interval)
}

func (p *Pipeline) StartCollection() {
	defer p.guard("start_collection")
	p.scheduler.Start()
}

func (p *Pipeline) StopCollection() {
	defer p.guard("stop_collection")
	p.scheduler.Stop()
}

// StartBackgroundTasks starts the alert maintenance loop.
func (p *Pipeline) StartBackgroundTasks(ctx context.Context) {
	defer p.guard("start_background_tasks")
	p.engine.Start(ctx)
}

func (p *Pipeline) StopBackgroundTasks() {
	defer p.guard("stop_background_tasks")
	p.engine.Stop(p.stopTimeout)
}

// sweep is registered as alert engine housekeeping.
func (p *Pipeline) sweep(ctx context.Context, now time.Time) error {
	swept := p.store.Sweep(p.retention)
	trimmed := p.tracker.Sweep(p.retention)
	groups := p.dispatcher.PruneGroups(now)
	if swept > 0 || trimmed > 0 || groups > 0 {
		p.logger.Debug("Retention sweep",
			"samples", swept,
			"performance_records", trimmed,
			"aggregation_groups", groups,
		)
	}

	if p.history == nil || p.sinkRetention <= 0 {
		return nil
	}
	p.sweepMu.Lock()
	due := now.Sub(p.lastSinkSweep) >= time.Hour
	if due {
		p.lastSinkSweep = now
	}
	p.sweepMu.Unlock()
	if !due {
		return nil
	}

	deleted, err := p.history.DeleteOlderThan(ctx, now.Add(-p.sinkRetention))
	if err != nil {
		p.recordError("sink_retention")
		return fmt.Errorf("sink retention sweep: %w", err)
	}
	if deleted > 0 {
		p.logger.Info("Sink retention sweep", "deleted", deleted)
	}
	return nil
}

// Close stops collectors and background tasks, then drains the dispatcher
// and sink writer. It is safe to call more than once.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		defer p.guard("close")

		p.scheduler.Stop()
		p.engine.Stop(p.stopTimeout)

		timeout := p.stopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if !p.dispatcher.Close(timeout) {
			p.closeErr = errors.New("notification dispatcher did not drain")
		}

		if p.writer != nil {
			if err := p.writer.Close(ctx); err != nil {
				p.closeErr = errors.Join(p.closeErr, fmt.Errorf("sink writer: %w", err))
			}
		}
		p.logger.Info("Telemetry pipeline closed")
	})
	return p.closeErr
}
