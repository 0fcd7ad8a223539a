package alerting

import (
	"context"
	"sort"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// Filter narrows Alerts. Zero values disable the respective condition.
type Filter struct {
	Severity   valueobject.Severity
	Source     string
	ActiveOnly bool
	Window     time.Duration
	Limit      int
}

// Statistics summarises the alert table.
type Statistics struct {
	Total      int            `json:"total_alerts"`
	Active     int            `json:"active_alerts"`
	Resolved   int            `json:"resolved_alerts"`
	BySeverity map[string]int `json:"by_severity"`
	BySource   map[string]int `json:"by_source"`
	LastHour   int            `json:"alerts_last_hour"`
	LastDay    int            `json:"alerts_last_24h"`
	Rules      int            `json:"threshold_rules"`
	Suppressed int            `json:"suppressed_keys"`
}

// CreateAlert stores and dispatches an alert without consulting rules.
func (e *Engine) CreateAlert(severity valueobject.Severity, title, message, source string, metadata map[string]interface{}) (entity.AlertSnapshot, error) {
	if source == "" {
		source = SourceManual
	}
	return e.raise(severity, title, message, source, metadata, e.cfg.Now())
}

func (e *Engine) raise(severity valueobject.Severity, title, message, source string, metadata map[string]interface{}, now time.Time) (entity.AlertSnapshot, error) {
	alert, err := entity.NewAlert(severity, title, message, source, metadata, now)
	if err != nil {
		return entity.AlertSnapshot{}, err
	}

	e.mu.Lock()
	e.alerts[alert.ID()] = alert
	snapshot := alert.Snapshot()
	e.mu.Unlock()

	e.metrics.AlertCreated(severity.String(), source)
	e.logger.Warn("Alert created",
		"alert_id", snapshot.ID,
		"severity", severity,
		"source", source,
		"title", title,
	)

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(dto.FromAlertSnapshot(snapshot))
	}
	return snapshot, nil
}

// ResolveAlert returns false for an unknown id. Resolving an already
// resolved alert is a no-op that returns true.
func (e *Engine) ResolveAlert(id, note string) bool {
	e.mu.Lock()
	alert, ok := e.alerts[id]
	changed := ok && alert.Resolve(note, e.cfg.Now())
	e.mu.Unlock()

	if !ok {
		e.logger.Warn("Cannot resolve unknown alert", "alert_id", id)
		return false
	}
	if changed {
		e.metrics.AlertResolved("manual")
		e.logger.Info("Alert resolved", "alert_id", id, "note", note)
	}
	return true
}

// Alert returns a single alert by id.
func (e *Engine) Alert(id string) (entity.AlertSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.alerts[id]
	if !ok {
		return entity.AlertSnapshot{}, false
	}
	return a.Snapshot(), true
}

// Alerts returns snapshots matching the filter, newest first.
func (e *Engine) Alerts(f Filter) []entity.AlertSnapshot {
	tr := valueobject.WindowEndingAt(e.cfg.Now(), f.Window)

	e.mu.RLock()
	result := make([]entity.AlertSnapshot, 0, len(e.alerts))
	for _, a := range e.alerts {
		if f.ActiveOnly && a.IsResolved() {
			continue
		}
		if f.Severity != "" && a.Severity() != f.Severity {
			continue
		}
		if f.Source != "" && a.Source() != f.Source {
			continue
		}
		if !tr.Unbounded() && a.CreatedAt().Before(tr.Start()) {
			continue
		}
		result = append(result, a.Snapshot())
	}
	e.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result
}

// ActiveCount returns the number of unresolved alerts.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, a := range e.alerts {
		if !a.IsResolved() {
			n++
		}
	}
	return n
}

func (e *Engine) Statistics() Statistics {
	now := e.cfg.Now()
	st := Statistics{
		BySeverity: make(map[string]int, 4),
		BySource:   make(map[string]int),
	}
	for _, sev := range valueobject.AllSeverities() {
		st.BySeverity[sev.String()] = 0
	}

	e.mu.RLock()
	for _, a := range e.alerts {
		st.Total++
		if a.IsResolved() {
			st.Resolved++
		} else {
			st.Active++
		}
		st.BySeverity[a.Severity().String()]++
		st.BySource[a.Source()]++

		age := a.Age(now)
		if age <= time.Hour {
			st.LastHour++
		}
		if age <= 24*time.Hour {
			st.LastDay++
		}
	}
	e.mu.RUnlock()

	e.rulesMu.RLock()
	st.Rules = len(e.rules)
	e.rulesMu.RUnlock()

	e.suppressMu.Lock()
	for _, until := range e.suppressed {
		if until.After(now) {
			st.Suppressed++
		}
	}
	e.suppressMu.Unlock()
	return st
}

// Cleanup drops resolved alerts older than the retention window, archiving
// them first when an archive is configured, and purges expired
// suppressions. The returned error is the archive failure, if any; the
// alerts are removed regardless.
func (e *Engine) Cleanup(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-e.cfg.Retention)

	e.mu.Lock()
	var expired []entity.AlertSnapshot
	for id, a := range e.alerts {
		if a.IsResolved() && a.CreatedAt().Before(cutoff) {
			expired = append(expired, a.Snapshot())
			delete(e.alerts, id)
		}
	}
	e.mu.Unlock()

	purged := e.purgeSuppressions(now)
	if len(expired) > 0 || purged > 0 {
		e.logger.Debug("Alert cleanup", "removed", len(expired), "suppressions_purged", purged)
	}

	if len(expired) == 0 || e.archive == nil {
		return len(expired), nil
	}
	if err := e.archive.PutBatch(ctx, expired); err != nil {
		e.logger.Error("Failed to archive resolved alerts", err, "count", len(expired))
		return len(expired), err
	}
	return len(expired), nil
}
