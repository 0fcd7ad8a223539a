// Package notify fans alerts out to the registered notification channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/ring"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

var ErrUnknownChannel = errors.New("unknown notification channel")

// Channel delivers one alert. Implementations must honour ctx cancellation.
type Channel interface {
	Kind() entity.ChannelKind
	Send(ctx context.Context, alert *dto.AlertDTO) error
}

// Config holds dispatcher tunables. Zero values are replaced by defaults.
type Config struct {
	Workers           int
	QueueSize         int
	Timeout           time.Duration
	HistorySize       int
	AggregationWindow time.Duration
	AggregationMax    int
	// AggregationKey lists alert fields forming the group key:
	// source, severity, title.
	AggregationKey []string
	Now            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 1000
	}
	if c.AggregationWindow <= 0 {
		c.AggregationWindow = 15 * time.Minute
	}
	if c.AggregationMax <= 0 {
		c.AggregationMax = 5
	}
	if len(c.AggregationKey) == 0 {
		c.AggregationKey = []string{"source", "severity"}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// HistoryEntry records every alert handed to Dispatch.
type HistoryEntry struct {
	Alert      *dto.AlertDTO `json:"alert"`
	Aggregated bool          `json:"aggregated"`
	Queued     bool          `json:"queued"`
	At         time.Time     `json:"at"`
}

// ChannelStats are per-channel delivery counters.
type ChannelStats struct {
	Kind      entity.ChannelKind `json:"kind"`
	Enabled   bool               `json:"enabled"`
	Sent      uint64             `json:"sent"`
	Failed    uint64             `json:"failed"`
	LastError string             `json:"last_error,omitempty"`
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Sent       uint64                  `json:"notifications_sent"`
	Failed     uint64                  `json:"notifications_failed"`
	Aggregated uint64                  `json:"notifications_aggregated"`
	Dropped    uint64                  `json:"notifications_dropped"`
	Pending    int                     `json:"pending"`
	Groups     int                     `json:"aggregation_groups"`
	Channels   map[string]ChannelStats `json:"channels"`
}

type registration struct {
	name    string
	channel Channel
	cfg     entity.ChannelConfig
}

type channelSet map[string]registration

type job struct {
	alert *dto.AlertDTO
}

// Dispatcher delivers alerts asynchronously on a fixed worker pool.
// The channel registry is copy-on-write: readers load an immutable map.
type Dispatcher struct {
	cfg Config

	regMu    sync.Mutex
	channels atomic.Pointer[channelSet]

	histMu  sync.Mutex
	history *ring.Buffer[HistoryEntry]

	aggMu  sync.Mutex
	groups map[string][]time.Time

	statsMu      sync.Mutex
	channelStats map[string]*ChannelStats

	sent       atomic.Uint64
	failed     atomic.Uint64
	aggregated atomic.Uint64
	dropped    atomic.Uint64

	closeMu sync.RWMutex
	closed  bool
	queue   chan job
	wg      sync.WaitGroup

	metrics port.SelfMetrics
	logger  *logger.Logger
}

func NewDispatcher(cfg Config, metrics port.SelfMetrics, log *logger.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = port.NopSelfMetrics{}
	}

	d := &Dispatcher{
		cfg:          cfg,
		history:      ring.New[HistoryEntry](cfg.HistorySize),
		groups:       make(map[string][]time.Time),
		channelStats: make(map[string]*ChannelStats),
		queue:        make(chan job, cfg.QueueSize),
		metrics:      metrics,
		logger:       log,
	}
	empty := channelSet{}
	d.channels.Store(&empty)

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Register validates cfg and adds or replaces the channel under name.
func (d *Dispatcher) Register(name string, ch Channel, cfg entity.ChannelConfig) error {
	if name == "" || ch == nil {
		return fmt.Errorf("%w: name and channel are required", entity.ErrInvalidChannelConfig)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Kind != ch.Kind() {
		return fmt.Errorf("%w: config kind %q does not match channel kind %q",
			entity.ErrInvalidChannelConfig, cfg.Kind, ch.Kind())
	}

	d.regMu.Lock()
	current := *d.channels.Load()
	next := make(channelSet, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[name] = registration{name: name, channel: ch, cfg: cfg}
	d.channels.Store(&next)
	d.regMu.Unlock()

	d.statsMu.Lock()
	if _, ok := d.channelStats[name]; !ok {
		d.channelStats[name] = &ChannelStats{}
	}
	d.channelStats[name].Kind = cfg.Kind
	d.channelStats[name].Enabled = cfg.Enabled
	d.statsMu.Unlock()

	d.logger.Info("Notification channel registered", "channel", name, "kind", cfg.Kind, "enabled", cfg.Enabled)
	return nil
}

// Unregister removes a channel. It returns false for an unknown name.
func (d *Dispatcher) Unregister(name string) bool {
	d.regMu.Lock()
	defer d.regMu.Unlock()

	current := *d.channels.Load()
	if _, ok := current[name]; !ok {
		return false
	}
	next := make(channelSet, len(current))
	for k, v := range current {
		if k != name {
			next[k] = v
		}
	}
	d.channels.Store(&next)
	return true
}

// Channels returns registered channel names, sorted.
func (d *Dispatcher) Channels() []string {
	set := *d.channels.Load()
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch records the alert and queues it for delivery unless its
// aggregation group already reached the cap inside the window. It never
// blocks and reports whether the alert was queued.
func (d *Dispatcher) Dispatch(alert *dto.AlertDTO) bool {
	if alert == nil {
		return false
	}
	now := d.cfg.Now()
	entry := HistoryEntry{Alert: alert, At: now}

	if !d.admit(d.groupKey(alert), now) {
		entry.Aggregated = true
		d.aggregated.Add(1)
		d.metrics.NotificationAggregated()
		d.logger.Debug("Alert aggregated", "alert_id", alert.ID, "source", alert.Source, "severity", alert.Severity)
		d.record(entry)
		return false
	}

	entry.Queued = d.enqueue(job{alert: alert})
	d.record(entry)
	return entry.Queued
}

func (d *Dispatcher) enqueue(j job) bool {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("Dispatcher closed, alert not delivered", "alert_id", j.alert.ID)
		return false
	}

	select {
	case d.queue <- j:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("Notification queue full, alert not delivered", "alert_id", j.alert.ID)
		return false
	}
}

func (d *Dispatcher) record(entry HistoryEntry) {
	d.histMu.Lock()
	d.history.Push(entry)
	d.histMu.Unlock()
}

func (d *Dispatcher) groupKey(alert *dto.AlertDTO) string {
	parts := make([]string, 0, len(d.cfg.AggregationKey))
	for _, field := range d.cfg.AggregationKey {
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "source":
			parts = append(parts, alert.Source)
		case "severity":
			parts = append(parts, alert.Severity)
		case "title":
			parts = append(parts, alert.Title)
		}
	}
	return strings.Join(parts, "|")
}

// admit counts the alert against its group when the group is below the cap.
func (d *Dispatcher) admit(key string, now time.Time) bool {
	cutoff := now.Add(-d.cfg.AggregationWindow)

	d.aggMu.Lock()
	defer d.aggMu.Unlock()

	kept := d.groups[key][:0]
	for _, at := range d.groups[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= d.cfg.AggregationMax {
		d.groups[key] = kept
		return false
	}
	d.groups[key] = append(kept, now)
	return true
}

// PruneGroups removes aggregation groups with no sends inside the window.
func (d *Dispatcher) PruneGroups(now time.Time) int {
	cutoff := now.Add(-d.cfg.AggregationWindow)

	d.aggMu.Lock()
	defer d.aggMu.Unlock()

	pruned := 0
	for key, sent := range d.groups {
		if len(sent) == 0 || !sent[len(sent)-1].After(cutoff) {
			delete(d.groups, key)
			pruned++
		}
	}
	return pruned
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j.alert)
	}
}

// deliver sends to every enabled channel in parallel and returns when all
// of them have finished or timed out.
func (d *Dispatcher) deliver(alert *dto.AlertDTO) {
	var wg sync.WaitGroup
	for _, reg := range *d.channels.Load() {
		if !reg.cfg.Enabled {
			continue
		}
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()
			_ = d.send(context.Background(), reg, alert)
		}(reg)
	}
	wg.Wait()
}

func (d *Dispatcher) send(parent context.Context, reg registration, alert *dto.AlertDTO) (err error) {
	ctx, cancel := context.WithTimeout(parent, d.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panic: %v", reg.name, r)
		}
		d.account(reg.name, err)
	}()

	return reg.channel.Send(ctx, alert)
}

func (d *Dispatcher) account(name string, err error) {
	d.statsMu.Lock()
	st, ok := d.channelStats[name]
	if !ok {
		st = &ChannelStats{}
		d.channelStats[name] = st
	}
	if err != nil {
		st.Failed++
		st.LastError = err.Error()
	} else {
		st.Sent++
	}
	d.statsMu.Unlock()

	if err != nil {
		d.failed.Add(1)
		d.metrics.NotificationFailed(name)
		d.logger.Error("Notification delivery failed", err, "channel", name)
		return
	}
	d.sent.Add(1)
	d.metrics.NotificationSent(name)
}

// TestChannel synchronously sends a synthetic Low alert through one channel.
func (d *Dispatcher) TestChannel(ctx context.Context, name string) error {
	reg, ok := (*d.channels.Load())[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}

	now := d.cfg.Now().UTC()
	alert := &dto.AlertDTO{
		ID:        fmt.Sprintf("test-%d", now.UnixNano()),
		Severity:  "low",
		Title:     "Test Notification",
		Message:   fmt.Sprintf("Test notification for channel %s", name),
		Source:    "notification_test",
		Timestamp: now,
		Metadata:  map[string]interface{}{"test": true, "channel": name},
	}
	return d.send(ctx, reg, alert)
}

// History returns up to limit recent entries, newest first.
func (d *Dispatcher) History(limit int) []HistoryEntry {
	d.histMu.Lock()
	defer d.histMu.Unlock()

	if limit <= 0 || limit > d.history.Len() {
		limit = d.history.Len()
	}
	result := make([]HistoryEntry, 0, limit)
	d.history.EachReverse(func(e HistoryEntry) bool {
		result = append(result, e)
		return len(result) < limit
	})
	return result
}

func (d *Dispatcher) Stats() Stats {
	st := Stats{
		Sent:       d.sent.Load(),
		Failed:     d.failed.Load(),
		Aggregated: d.aggregated.Load(),
		Dropped:    d.dropped.Load(),
		Pending:    len(d.queue),
	}

	d.aggMu.Lock()
	st.Groups = len(d.groups)
	d.aggMu.Unlock()

	d.statsMu.Lock()
	st.Channels = make(map[string]ChannelStats, len(d.channelStats))
	for name, cs := range d.channelStats {
		st.Channels[name] = *cs
	}
	d.statsMu.Unlock()
	return st
}

// Close stops accepting alerts and waits up to timeout for queued
// deliveries to finish.
func (d *Dispatcher) Close(timeout time.Duration) bool {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return true
	}
	d.closed = true
	close(d.queue)
	d.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.logger.Warn("Notification workers did not drain in time", "timeout", timeout)
		return false
	}
}
