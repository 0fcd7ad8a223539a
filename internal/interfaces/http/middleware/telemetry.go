package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// RequestMetric - имя Timer-метрики длительности HTTP запроса
const RequestMetric = "http.request.duration"

// RequestRecorder принимает телеметрию запросов (обычно telemetry.Pipeline)
type RequestRecorder interface {
	RecordTimer(name string, durationMs float64, tags map[string]string)
	TrackPerformance(operation string, durationMs float64, success bool, metadata map[string]interface{})
}

// Telemetry пишет Timer http.request.duration и performance-запись "http <route>".
// Ответы 5xx считаются неуспешными.
func Telemetry(recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			// WebSocket соединение живет долго, его длительность не показательна
			if wrapped.hijacked {
				return
			}

			durationMs := float64(time.Since(start).Microseconds()) / 1000
			route := routeOf(r)
			status := strconv.Itoa(wrapped.statusCode)

			recorder.RecordTimer(RequestMetric, durationMs, map[string]string{
				"route":  route,
				"method": r.Method,
				"status": status,
			})
			recorder.TrackPerformance("http "+route, durationMs, wrapped.statusCode < http.StatusInternalServerError, map[string]interface{}{
				"method": r.Method,
				"status": wrapped.statusCode,
			})
		})
	}
}

// routeOf берет шаблон маршрута из ServeMux, чтобы не плодить метрики на каждый path
func routeOf(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
