package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/alerting"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/collection"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/notify"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/store"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusWarning  = "warning"
	StatusCritical = "critical"

	healthTimeout = 5 * time.Second
)

// ComponentHealth is the result of pinging one dependency.
type ComponentHealth struct {
	Status         string  `json:"status"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// HealthReport is returned by Health.
type HealthReport struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health pings the sink and every registered dependency probe. Any failure
// marks the pipeline degraded.
func (p *Pipeline) Health(ctx context.Context) (report HealthReport) {
	defer p.guard("health")

	now := p.now()
	report = HealthReport{
		Status:     StatusHealthy,
		Timestamp:  now,
		Uptime:     now.Sub(p.startedAt).Truncate(time.Second).String(),
		Components: make(map[string]ComponentHealth),
	}

	check := func(name string, ping func(context.Context) error) {
		pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()

		start := time.Now()
		err := ping(pingCtx)
		h := ComponentHealth{
			Status:         StatusHealthy,
			ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		}
		if err != nil {
			h.Status = StatusDegraded
			h.Error = err.Error()
			report.Status = StatusDegraded
		}
		report.Components[name] = h
	}

	if p.sink != nil {
		check("sink:"+p.sink.Name(), p.sink.Ping)
	}
	for _, probe := range p.probes {
		check(probe.Name(), probe.Ping)
	}
	return report
}

// AlertStatistics combines alert table and delivery counters.
type AlertStatistics struct {
	alerting.Statistics
	NotificationsSent       uint64 `json:"notifications_sent"`
	NotificationsFailed     uint64 `json:"notifications_failed"`
	NotificationsAggregated uint64 `json:"notifications_aggregated"`
}

func (p *Pipeline) AlertStatistics() (st AlertStatistics) {
	defer p.guard("alert_statistics")

	ns := p.dispatcher.Stats()
	return AlertStatistics{
		Statistics:              p.engine.Statistics(),
		NotificationsSent:       ns.Sent,
		NotificationsFailed:     ns.Failed,
		NotificationsAggregated: ns.Aggregated,
	}
}

// SystemOverview is the dashboard landing view.
type SystemOverview struct {
	Status           string                        `json:"status"`
	Timestamp        time.Time                     `json:"timestamp"`
	Uptime           string                        `json:"uptime"`
	MonitoringActive bool                          `json:"monitoring_active"`
	BackgroundTasks  bool                          `json:"background_tasks"`
	ActiveAlerts     int                           `json:"active_alerts"`
	Store            store.Stats                   `json:"store"`
	Alerts           AlertStatistics               `json:"alerts"`
	Notifications    notify.Stats                  `json:"notifications"`
	SystemMetrics    map[string]float64            `json:"system_metrics"`
	Operations       []string                      `json:"operations"`
	Collectors       []collection.CollectorSummary `json:"collectors"`
}

// overviewStatus maps the active alert count: 0 healthy, up to 5 warning,
// more than 5 critical.
func overviewStatus(active int) string {
	switch {
	case active == 0:
		return StatusHealthy
	case active <= 5:
		return StatusWarning
	default:
		return StatusCritical
	}
}

func (p *Pipeline) SystemOverview() (ov SystemOverview) {
	defer p.guard("system_overview")

	now := p.now()
	active := p.engine.ActiveCount()
	ov = SystemOverview{
		Status:           overviewStatus(active),
		Timestamp:        now,
		Uptime:           now.Sub(p.startedAt).Truncate(time.Second).String(),
		MonitoringActive: p.scheduler.Running(),
		BackgroundTasks:  p.engine.Running(),
		ActiveAlerts:     active,
		Store:            p.store.Stats(),
		Alerts:           p.AlertStatistics(),
		Notifications:    p.dispatcher.Stats(),
		SystemMetrics:    make(map[string]float64),
		Operations:       p.tracker.Operations(),
		Collectors:       p.scheduler.Summary(),
	}
	for _, name := range p.store.Names() {
		if !strings.HasPrefix(name, "system.") {
			continue
		}
		if s, ok := p.store.Latest(name); ok {
			ov.SystemMetrics[name] = s.Value()
		}
	}
	return ov
}

// ChannelReport lists registered channels with delivery counters and the
// most recent attempts.
type ChannelReport struct {
	Channels []string              `json:"channels"`
	Stats    notify.Stats          `json:"stats"`
	History  []notify.HistoryEntry `json:"history"`
}

func (p *Pipeline) ChannelReport(historyLimit int) (report ChannelReport) {
	defer p.guard("channel_report")
	return ChannelReport{
		Channels: p.dispatcher.Channels(),
		Stats:    p.dispatcher.Stats(),
		History:  p.dispatcher.History(historyLimit),
	}
}
