package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/service"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// Evaluate checks every enabled rule against the latest sample of its metric
// and returns the number of alerts raised.
func (e *Engine) Evaluate(ctx context.Context) (int, error) {
	rules := e.Rules()
	if len(rules) == 0 || e.samples == nil {
		return 0, nil
	}

	now := e.cfg.Now()
	grouped := service.NewMetricAggregator().GroupByName(e.samples.Query("", e.cfg.Lookback))

	raised := 0
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return raised, err
		}
		if !rule.Enabled {
			continue
		}

		series := grouped[rule.MetricName]
		if len(series) == 0 {
			continue
		}
		latest := series[len(series)-1]
		if !rule.Violated(latest.Value()) {
			continue
		}
		if !e.confirmed(rule, series, now) {
			continue
		}

		id := rule.ID()
		if !e.trySuppress(id, now) {
			continue
		}

		e.raise(rule.Severity,
			fmt.Sprintf("Threshold Alert: %s", rule.MetricName),
			thresholdMessage(rule, latest.Value()),
			SourceThreshold,
			map[string]interface{}{
				"rule_id":       id,
				"metric_name":   rule.MetricName,
				"current_value": latest.Value(),
				"threshold":     rule.Threshold,
				"operator":      rule.Operator.String(),
				"metric_tags":   latest.Tags(),
			}, now)
		raised++
	}
	return raised, nil
}

// confirmed applies the duration check: at least two samples inside
// confirm_duration and a violating share of at least ConfirmRatio.
func (e *Engine) confirmed(rule entity.ThresholdRule, series []entity.Sample, now time.Time) bool {
	if rule.ConfirmDuration <= 0 {
		return true
	}

	window := valueobject.WindowEndingAt(now, rule.ConfirmDuration)
	total, violating := 0, 0
	for _, s := range series {
		if !window.Contains(s.Timestamp()) {
			continue
		}
		total++
		if rule.Violated(s.Value()) {
			violating++
		}
	}
	if total < 2 {
		return false
	}
	return float64(violating)/float64(total) >= e.cfg.ConfirmRatio
}

func thresholdMessage(rule entity.ThresholdRule, value float64) string {
	subject := rule.Description
	if subject == "" {
		subject = rule.MetricName
	}
	return fmt.Sprintf("%s - Current: %g, Threshold: %s %g", subject, value, rule.Operator, rule.Threshold)
}

// EvaluateErrorRates raises a High alert for operations whose recent error
// rate exceeds the configured percentage.
func (e *Engine) EvaluateErrorRates(ctx context.Context) (int, error) {
	if e.errorRates == nil {
		return 0, nil
	}

	now := e.cfg.Now()
	raised := 0
	for _, op := range e.errorRates.Operations() {
		if err := ctx.Err(); err != nil {
			return raised, err
		}

		rate, considered := e.errorRates.ErrorRate(op, e.cfg.ErrorRateWindow)
		if considered < e.cfg.ErrorRateMinSamples || rate <= e.cfg.ErrorRateThreshold {
			continue
		}
		key := "error_rate_" + op
		if !e.trySuppress(key, now) {
			continue
		}

		e.raise(valueobject.SeverityHigh,
			fmt.Sprintf("High Error Rate: %s", op),
			fmt.Sprintf("Error rate for %s is %.1f%%, exceeding threshold of %g%%", op, rate, e.cfg.ErrorRateThreshold),
			SourcePerformance,
			map[string]interface{}{
				"rule_id":        key,
				"operation":      op,
				"error_rate":     rate,
				"total_requests": considered,
				"threshold":      e.cfg.ErrorRateThreshold,
			}, now)
		raised++
	}
	return raised, nil
}

// AutoResolve resolves open threshold alerts older than AutoResolveAge whose
// rule no longer fires on the latest value.
func (e *Engine) AutoResolve(ctx context.Context) int {
	if e.samples == nil {
		return 0
	}
	now := e.cfg.Now()

	type candidate struct {
		alert  *entity.Alert
		ruleID string
	}
	var candidates []candidate

	e.mu.RLock()
	for _, a := range e.alerts {
		if a.IsResolved() || a.Source() != SourceThreshold || a.Age(now) <= e.cfg.AutoResolveAge {
			continue
		}
		raw, _ := a.MetadataValue("rule_id")
		ruleID, _ := raw.(string)
		candidates = append(candidates, candidate{alert: a, ruleID: ruleID})
	}
	e.mu.RUnlock()

	resolved := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		rule, ok := e.rule(c.ruleID)
		if !ok {
			continue
		}
		series := e.samples.SamplesFor(rule.MetricName, e.cfg.Lookback)
		if len(series) == 0 || rule.Violated(series[len(series)-1].Value()) {
			continue
		}

		e.mu.Lock()
		changed := c.alert.Resolve(AutoResolveNote, now)
		e.mu.Unlock()
		if changed {
			resolved++
			e.metrics.AlertResolved("auto")
			e.logger.Info("Alert auto-resolved", "alert_id", c.alert.ID(), "rule_id", c.ruleID)
		}
	}
	return resolved
}
