// Package collection runs periodic metric collectors, one goroutine each.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

var (
	ErrDuplicateCollector = errors.New("collector already registered")
	ErrInvalidCollector   = errors.New("invalid collector")
)

const DefaultStopTimeout = 5 * time.Second

// Func collects one round of metrics.
type Func func(ctx context.Context) error

// Recorder receives the scheduler's own timing and error samples.
type Recorder interface {
	RecordValue(name string, kind valueobject.MetricKind, value float64, unit string, tags map[string]string) error
}

// CollectorSummary describes one registered collector.
type CollectorSummary struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Runs         uint64        `json:"runs"`
	Errors       uint64        `json:"errors"`
	LastError    string        `json:"last_error,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	Running      bool          `json:"running"`
}

type collector struct {
	name     string
	fn       Func
	interval time.Duration

	mu      sync.Mutex
	runs    uint64
	errs    uint64
	lastErr string
	lastDur time.Duration
	lastRun time.Time
	running bool
}

// Scheduler owns the collector registry and its loops.
type Scheduler struct {
	mu         sync.Mutex
	collectors map[string]*collector
	ctx        context.Context
	cancel     context.CancelFunc
	active     map[string]chan struct{}

	stopTimeout time.Duration
	recorder    Recorder
	metrics     port.SelfMetrics
	logger      *logger.Logger
}

// NewScheduler builds a scheduler. recorder may be nil.
func NewScheduler(stopTimeout time.Duration, recorder Recorder, metrics port.SelfMetrics, log *logger.Logger) *Scheduler {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	if metrics == nil {
		metrics = port.NopSelfMetrics{}
	}
	return &Scheduler{
		collectors:  make(map[string]*collector),
		active:      make(map[string]chan struct{}),
		stopTimeout: stopTimeout,
		recorder:    recorder,
		metrics:     metrics,
		logger:      log,
	}
}

// Register adds a collector. When the scheduler is running the new loop
// starts immediately.
func (s *Scheduler) Register(name string, fn Func, interval time.Duration) error {
	if name == "" || fn == nil || interval <= 0 {
		return fmt.Errorf("%w: name, function and positive interval are required", ErrInvalidCollector)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collectors[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCollector, name)
	}
	c := &collector{name: name, fn: fn, interval: interval}
	s.collectors[name] = c

	if s.ctx != nil {
		s.launch(c)
	}
	s.logger.Info("Collector registered", "collector", name, "interval", interval)
	return nil
}

// Start launches one loop per collector. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, c := range s.collectors {
		s.launch(c)
	}
	s.logger.Info("Metric collection started", "collectors", len(s.collectors))
}

// launch must be called with s.mu held.
func (s *Scheduler) launch(c *collector) {
	ctx := s.ctx
	done := make(chan struct{})
	s.active[c.name] = done
	go func() {
		defer close(done)
		s.loop(ctx, c)
	}()
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// Stop cancels every loop and waits up to the stop timeout. It returns the
// names of loops that did not exit in time.
func (s *Scheduler) Stop() []string {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	active := s.active
	s.ctx, s.cancel = nil, nil
	s.active = make(map[string]chan struct{})
	s.mu.Unlock()

	cancel()

	deadline := time.NewTimer(s.stopTimeout)
	defer deadline.Stop()

	var abandoned []string
	timedOut := false
	for name, done := range active {
		if !timedOut {
			select {
			case <-done:
				continue
			case <-deadline.C:
				timedOut = true
			}
		}
		select {
		case <-done:
		default:
			abandoned = append(abandoned, name)
		}
	}

	if len(abandoned) > 0 {
		sort.Strings(abandoned)
		s.logger.Warn("Collectors did not stop in time", "abandoned", abandoned, "timeout", s.stopTimeout)
		return abandoned
	}
	s.logger.Info("Metric collection stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, c *collector) {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		_ = s.runOnce(ctx, c)
		timer.Reset(c.interval)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, c *collector) error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	start := time.Now()
	err := safeCall(ctx, c.fn)
	elapsed := time.Since(start)

	c.mu.Lock()
	c.running = false
	c.runs++
	c.lastDur = elapsed
	c.lastRun = start
	if err != nil {
		c.errs++
		c.lastErr = err.Error()
	}
	c.mu.Unlock()

	s.metrics.CollectorRun(c.name, elapsed, err)
	if s.recorder != nil {
		_ = s.recorder.RecordValue("metrics.collection."+c.name, valueobject.Timer,
			float64(elapsed.Microseconds())/1000, "ms", map[string]string{"collector": c.name})
	}

	if err == nil || ctx.Err() != nil {
		return err
	}
	s.logger.Error("Collector failed", err, "collector", c.name)
	if s.recorder != nil {
		_ = s.recorder.RecordValue("metrics.collection."+c.name+".errors", valueobject.Counter,
			1, "count", map[string]string{"collector": c.name})
	}
	return err
}

func safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collector panic: %v", r)
		}
	}()
	return fn(ctx)
}

// RunOnce runs a registered collector synchronously.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	c, ok := s.collectors[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidCollector, name)
	}
	return s.runOnce(ctx, c)
}

// Summary lists registered collectors sorted by name.
func (s *Scheduler) Summary() []CollectorSummary {
	s.mu.Lock()
	collectors := make([]*collector, 0, len(s.collectors))
	for _, c := range s.collectors {
		collectors = append(collectors, c)
	}
	s.mu.Unlock()

	result := make([]CollectorSummary, 0, len(collectors))
	for _, c := range collectors {
		c.mu.Lock()
		result = append(result, CollectorSummary{
			Name:         c.name,
			Interval:     c.interval,
			Runs:         c.runs,
			Errors:       c.errs,
			LastError:    c.lastErr,
			LastDuration: c.lastDur,
			LastRun:      c.lastRun,
			Running:      c.running,
		})
		c.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
