package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/middleware"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/alerting"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const manualAlertSource = "api"

// AlertManager - операции над алертами и пороговыми правилами
type AlertManager interface {
	GetAlerts(filter alerting.Filter) []*dto.AlertDTO
	CreateAlert(severity valueobject.Severity, title, message, source string, metadata map[string]interface{}) string
	ResolveAlert(id, note string) bool
	AlertStatistics() telemetry.AlertStatistics
	AddThresholdRule(rule entity.ThresholdRule) (string, error)
	RemoveThresholdRule(id string) bool
	ThresholdRules() []entity.ThresholdRule
}

// AlertsAPIHandler обрабатывает API алертов и правил
type AlertsAPIHandler struct {
	alerts AlertManager
	logger *logger.Logger
}

// NewAlertsAPIHandler создает новый handler
func NewAlertsAPIHandler(alerts AlertManager, logger *logger.Logger) *AlertsAPIHandler {
	return &AlertsAPIHandler{alerts: alerts, logger: logger}
}

// ListAlerts поддерживает фильтры severity, source, active, window, limit
func (h *AlertsAPIHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAlertFilter(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	alerts := h.alerts.GetAlerts(filter)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func parseAlertFilter(r *http.Request) (alerting.Filter, error) {
	q := r.URL.Query()
	var filter alerting.Filter

	if raw := q.Get("severity"); raw != "" {
		sev, err := valueobject.ParseSeverity(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: unknown severity %q", errBadParam, raw)
		}
		filter.Severity = sev
	}
	filter.Source = strings.TrimSpace(q.Get("source"))

	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: active must be a boolean", errBadParam)
		}
		filter.ActiveOnly = active
	}

	window, err := parseWindow(r, "window", 0)
	if err != nil {
		return filter, err
	}
	filter.Window = window

	if filter.Limit, err = parseInt(r, "limit", 100); err != nil {
		return filter, err
	}
	return filter, nil
}

// CreateAlert создает алерт вручную
func (h *AlertsAPIHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	sev, err := valueobject.ParseSeverity(req.Severity)
	if err != nil {
		http.Error(w, "Invalid severity", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "Missing required field: title", http.StatusBadRequest)
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = manualAlertSource
	}

	id := h.alerts.CreateAlert(sev, req.Title, req.Message, source, req.Metadata)
	if id == "" {
		http.Error(w, "Failed to create alert", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"alert_id": id})
}

// ResolveAlert закрывает алерт; повторное закрытие идемпотентно,
// resolved=false только для неизвестного id
func (h *AlertsAPIHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveAlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		http.Error(w, "Missing required field: alert_id", http.StatusBadRequest)
		return
	}

	resolved := h.alerts.ResolveAlert(req.ID, req.Note)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"alert_id": req.ID,
		"resolved": resolved,
	})
}

func (h *AlertsAPIHandler) Statistics(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.alerts.AlertStatistics())
}

// ListRules отдает зарегистрированные пороговые правила
func (h *AlertsAPIHandler) ListRules(w http.ResponseWriter, _ *http.Request) {
	rules := h.alerts.ThresholdRules()
	items := make([]map[string]any, 0, len(rules))
	for _, rule := range rules {
		items = append(items, map[string]any{
			"id":               rule.ID(),
			"metric_name":      rule.MetricName,
			"operator":         rule.Operator,
			"threshold":        rule.Threshold,
			"confirm_duration": rule.ConfirmDuration.String(),
			"severity":         rule.Severity,
			"enabled":          rule.Enabled,
			"description":      rule.Description,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"rules": items, "count": len(items)})
}

// AddRule регистрирует пороговое правило
func (h *AlertsAPIHandler) AddRule(w http.ResponseWriter, r *http.Request) {
	var req dto.ThresholdRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}

	rule, err := ruleFromRequest(req)
	if err != nil {
		badRequest(w, err)
		return
	}

	id, err := h.alerts.AddThresholdRule(rule)
	if errors.Is(err, entity.ErrInvalidRule) {
		badRequest(w, err)
		return
	}
	if err != nil {
		h.logger.Error("Failed to add threshold rule", err, "metric", rule.MetricName)
		http.Error(w, "Failed to add rule", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"rule_id": id})
}

func ruleFromRequest(req dto.ThresholdRuleRequest) (entity.ThresholdRule, error) {
	op, err := valueobject.ParseOperator(req.Operator)
	if err != nil {
		return entity.ThresholdRule{}, fmt.Errorf("%w: %v", entity.ErrInvalidRule, err)
	}
	sev, err := valueobject.ParseSeverity(req.Severity)
	if err != nil {
		return entity.ThresholdRule{}, fmt.Errorf("%w: %v", entity.ErrInvalidRule, err)
	}

	var confirm time.Duration
	if raw := strings.TrimSpace(req.ConfirmDuration); raw != "" {
		if confirm, err = time.ParseDuration(raw); err != nil {
			return entity.ThresholdRule{}, fmt.Errorf("%w: confirm_duration must be a duration", entity.ErrInvalidRule)
		}
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return entity.ThresholdRule{
		MetricName:      strings.TrimSpace(req.MetricName),
		Operator:        op,
		Threshold:       req.Threshold,
		ConfirmDuration: confirm,
		Severity:        sev,
		Enabled:         enabled,
		Description:     req.Description,
	}, nil
}

// RemoveRule удаляет правило по ?id=
func (h *AlertsAPIHandler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "Missing required parameter: id", http.StatusBadRequest)
		return
	}
	if !h.alerts.RemoveThresholdRule(id) {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"rule_id": id, "removed": true})
}
