// Package alerting evaluates threshold rules and error rates against the
// in-memory store and owns the alert table.
package alerting

import (
	"sort"
	"sync"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const (
	SourceThreshold   = "threshold_monitor"
	SourcePerformance = "performance_monitor"
	SourceManual      = "manual"

	AutoResolveNote = "auto-resolved"
)

// SampleSource is the read side of the metric store used for evaluation.
type SampleSource interface {
	Query(nameFilter string, window time.Duration) []entity.Sample
	SamplesFor(name string, window time.Duration) []entity.Sample
}

// ErrorRateSource is the read side of the performance tracker.
type ErrorRateSource interface {
	Operations() []string
	ErrorRate(operation string, n int) (rate float64, considered int)
}

// Dispatcher delivers a newly created alert. It must not block.
type Dispatcher interface {
	Dispatch(alert *dto.AlertDTO) bool
}

// Config holds engine tunables. Zero values are replaced by defaults.
type Config struct {
	SuppressionWindow   time.Duration
	ConfirmRatio        float64
	AutoResolveAge      time.Duration
	Retention           time.Duration
	Lookback            time.Duration
	ErrorRateThreshold  float64
	ErrorRateWindow     int
	ErrorRateMinSamples int
	MaintenanceInterval time.Duration
	ErrorBackoff        time.Duration
	Now                 func() time.Time
}

func (c Config) withDefaults() Config {
	if c.SuppressionWindow <= 0 {
		c.SuppressionWindow = 15 * time.Minute
	}
	if c.ConfirmRatio <= 0 || c.ConfirmRatio > 1 {
		c.ConfirmRatio = 0.8
	}
	if c.AutoResolveAge <= 0 {
		c.AutoResolveAge = time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.Lookback <= 0 {
		c.Lookback = time.Hour
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = 5.0
	}
	if c.ErrorRateWindow <= 0 {
		c.ErrorRateWindow = 100
	}
	if c.ErrorRateMinSamples <= 0 {
		c.ErrorRateMinSamples = 10
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = 30 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 60 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Engine owns rules, alerts and suppression state. Each registry has its
// own lock and no lock is held while dispatching or archiving.
type Engine struct {
	cfg Config

	rulesMu sync.RWMutex
	rules   map[string]entity.ThresholdRule

	mu     sync.RWMutex
	alerts map[string]*entity.Alert

	suppressMu sync.Mutex
	suppressed map[string]time.Time

	samples    SampleSource
	errorRates ErrorRateSource
	dispatcher Dispatcher
	archive    port.AlertArchive
	metrics    port.SelfMetrics
	logger     *logger.Logger

	hooksMu sync.Mutex
	hooks   []Housekeeping

	loopMu sync.Mutex
	cancel func()
	done   chan struct{}
}

// NewEngine builds an engine. errorRates, dispatcher and archive may be nil.
func NewEngine(
	cfg Config,
	samples SampleSource,
	errorRates ErrorRateSource,
	dispatcher Dispatcher,
	archive port.AlertArchive,
	metrics port.SelfMetrics,
	log *logger.Logger,
) *Engine {
	if metrics == nil {
		metrics = port.NopSelfMetrics{}
	}
	return &Engine{
		cfg:        cfg.withDefaults(),
		rules:      make(map[string]entity.ThresholdRule),
		alerts:     make(map[string]*entity.Alert),
		suppressed: make(map[string]time.Time),
		samples:    samples,
		errorRates: errorRates,
		dispatcher: dispatcher,
		archive:    archive,
		metrics:    metrics,
		logger:     log,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// AddRule registers a rule and returns its id. A rule with the same id
// replaces the existing one.
func (e *Engine) AddRule(rule entity.ThresholdRule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	id := rule.ID()

	e.rulesMu.Lock()
	_, replaced := e.rules[id]
	e.rules[id] = rule
	e.rulesMu.Unlock()

	e.logger.Info("Threshold rule registered", "rule_id", id, "replaced", replaced)
	return id, nil
}

func (e *Engine) RemoveRule(id string) bool {
	e.rulesMu.Lock()
	_, ok := e.rules[id]
	delete(e.rules, id)
	e.rulesMu.Unlock()

	if !ok {
		e.logger.Warn("Unknown threshold rule", "rule_id", id)
	}
	return ok
}

// Rules returns registered rules sorted by id.
func (e *Engine) Rules() []entity.ThresholdRule {
	e.rulesMu.RLock()
	rules := make([]entity.ThresholdRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	e.rulesMu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID() < rules[j].ID() })
	return rules
}

func (e *Engine) rule(id string) (entity.ThresholdRule, bool) {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	r, ok := e.rules[id]
	return r, ok
}

// trySuppress starts a cool-down for key unless one is active.
func (e *Engine) trySuppress(key string, now time.Time) bool {
	e.suppressMu.Lock()
	defer e.suppressMu.Unlock()
	if until, ok := e.suppressed[key]; ok && until.After(now) {
		return false
	}
	e.suppressed[key] = now.Add(e.cfg.SuppressionWindow)
	return true
}

// IsSuppressed reports whether a cool-down for key is active.
func (e *Engine) IsSuppressed(key string) bool {
	now := e.cfg.Now()
	e.suppressMu.Lock()
	defer e.suppressMu.Unlock()
	until, ok := e.suppressed[key]
	return ok && until.After(now)
}

func (e *Engine) purgeSuppressions(now time.Time) int {
	e.suppressMu.Lock()
	defer e.suppressMu.Unlock()
	purged := 0
	for key, until := range e.suppressed {
		if !until.After(now) {
			delete(e.suppressed, key)
			purged++
		}
	}
	return purged
}
