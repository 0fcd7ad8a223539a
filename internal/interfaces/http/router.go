package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/handler"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/middleware"
	"github.com/dreschagin/telemetry-pipeline/pkg/config"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// Handlers - набор обработчиков API
type Handlers struct {
	System    *handler.SystemAPIHandler
	Metrics   *handler.MetricsAPIHandler
	Alerts    *handler.AlertsAPIHandler
	Analytics *handler.AnalyticsAPIHandler
	WebSocket *handler.WebSocketHandler
	Auth      *handler.AuthAPIHandler
}

// Options - необязательная инструментация; nil поля отключают соответствующий middleware
type Options struct {
	Requests    middleware.RequestRecorder
	SelfMetrics *metrics.Metrics
	Registry    *prometheus.Registry
	RateLimiter *middleware.IPRateLimiter
}

// Router настраивает маршруты приложения
type Router struct {
	mux      *http.ServeMux
	handlers Handlers
	opts     Options
	security config.SecurityConfig
	logger   *logger.Logger
}

// NewRouter создает новый router
func NewRouter(
	handlers Handlers,
	opts Options,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:      http.NewServeMux(),
		handlers: handlers,
		opts:     opts,
		security: security,
		logger:   logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	h := rt.handlers

	// Health и /metrics без авторизации для probes и scrape
	rt.mux.HandleFunc("GET /healthz", h.System.Liveness)
	rt.mux.HandleFunc("GET /readyz", h.System.Readiness)
	if rt.opts.Registry != nil {
		rt.mux.Handle("GET /metrics", promhttp.HandlerFor(rt.opts.Registry, promhttp.HandlerOpts{
			// gzip отдает middleware.Compression
			DisableCompression: true,
		}))
	}

	authConfig := middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}
	if rt.opts.SelfMetrics != nil {
		authConfig.OnReject = rt.opts.SelfMetrics.AuthFailures.Inc
	}
	authMiddleware := middleware.Auth(authConfig, rt.logger)
	protect := func(pattern string, fn http.HandlerFunc) {
		rt.mux.Handle(pattern, authMiddleware(fn))
	}

	// WebSocket
	protect("GET /ws", h.WebSocket.HandleConnection)

	// Auth
	if h.Auth != nil {
		rt.mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
		rt.mux.HandleFunc("POST /api/v1/auth/logout", h.Auth.Logout)
		rt.mux.HandleFunc("GET /api/v1/auth/status", h.Auth.Status)
	}

	// Metrics
	protect("GET /api/v1/metrics", h.Metrics.GetMetrics)
	protect("GET /api/v1/metrics/history", h.Metrics.GetHistory)
	protect("GET /api/v1/performance", h.Metrics.GetPerformance)

	// Alerts and rules
	protect("GET /api/v1/alerts", h.Alerts.ListAlerts)
	protect("POST /api/v1/alerts", h.Alerts.CreateAlert)
	protect("POST /api/v1/alerts/resolve", h.Alerts.ResolveAlert)
	protect("GET /api/v1/alerts/stats", h.Alerts.Statistics)
	protect("GET /api/v1/rules", h.Alerts.ListRules)
	protect("POST /api/v1/rules", h.Alerts.AddRule)
	protect("DELETE /api/v1/rules", h.Alerts.RemoveRule)

	// Analytics
	protect("GET /api/v1/analytics/timeseries", h.Analytics.TimeSeries)
	protect("GET /api/v1/analytics/histogram", h.Analytics.Histogram)
	protect("GET /api/v1/analytics/correlation", h.Analytics.Correlation)
	protect("GET /api/v1/analytics/anomalies", h.Analytics.Anomalies)
	protect("GET /api/v1/analytics/summary", h.Analytics.Summary)
	protect("GET /api/v1/export", h.Analytics.Export)

	// System
	protect("GET /api/v1/overview", h.System.Overview)
	protect("GET /api/v1/dependencies", h.System.Dependencies)
	protect("GET /api/v1/channels", h.System.Channels)
	protect("POST /api/v1/channels/test", h.System.TestChannel)

	// Применяем middleware, последний добавленный выполняется первым
	var handler http.Handler = rt.mux
	handler = middleware.Compression(handler)
	if rt.opts.RateLimiter != nil {
		var onReject func()
		if rt.opts.SelfMetrics != nil {
			onReject = rt.opts.SelfMetrics.RateLimitDropped.Inc
		}
		handler = middleware.RateLimit(rt.opts.RateLimiter, onReject)(handler)
	}
	if rt.opts.SelfMetrics != nil {
		handler = rt.opts.SelfMetrics.Middleware(handler)
	}
	if rt.opts.Requests != nil {
		handler = middleware.Telemetry(rt.opts.Requests)(handler)
	}
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}
