package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/middleware"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/notify"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const channelHistoryLimit = 50

// SystemService - состояние пайплайна и каналов уведомлений
type SystemService interface {
	Health(ctx context.Context) telemetry.HealthReport
	SystemOverview() telemetry.SystemOverview
	ChannelReport(historyLimit int) telemetry.ChannelReport
	TestChannel(ctx context.Context, name string) error
}

// DependencyChecker пингует внешние зависимости
type DependencyChecker interface {
	Execute(ctx context.Context) []dto.DependencyStatusDTO
}

// SystemAPIHandler обрабатывает health, overview и каналы
type SystemAPIHandler struct {
	system       SystemService
	dependencies DependencyChecker
	logger       *logger.Logger
}

// NewSystemAPIHandler создает новый handler; dependencies может быть nil
func NewSystemAPIHandler(system SystemService, dependencies DependencyChecker, logger *logger.Logger) *SystemAPIHandler {
	return &SystemAPIHandler{
		system:       system,
		dependencies: dependencies,
		logger:       logger,
	}
}

// Liveness всегда отвечает ok, пока процесс жив
func (h *SystemAPIHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readiness отдает 503, если какая-либо зависимость недоступна
func (h *SystemAPIHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.system.Health(r.Context())
	status := http.StatusOK
	if report.Status != telemetry.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, report)
}

func (h *SystemAPIHandler) Overview(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.system.SystemOverview())
}

func (h *SystemAPIHandler) Dependencies(w http.ResponseWriter, r *http.Request) {
	if h.dependencies == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"dependencies": []dto.DependencyStatusDTO{}})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"dependencies": h.dependencies.Execute(r.Context())})
}

func (h *SystemAPIHandler) Channels(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.system.ChannelReport(channelHistoryLimit))
}

type testChannelRequest struct {
	Channel string `json:"channel"`
}

// TestChannel синхронно отправляет тестовое уведомление в канал
func (h *SystemAPIHandler) TestChannel(w http.ResponseWriter, r *http.Request) {
	var req testChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	name := strings.TrimSpace(req.Channel)
	if name == "" {
		http.Error(w, "Missing required field: channel", http.StatusBadRequest)
		return
	}

	err := h.system.TestChannel(r.Context(), name)
	switch {
	case errors.Is(err, notify.ErrUnknownChannel):
		http.Error(w, "Unknown channel", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Warn("Test notification failed", "channel", name, "error", err)
		middleware.WriteJSON(w, http.StatusBadGateway, map[string]any{
			"channel": name,
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{"channel": name, "success": true})
}
