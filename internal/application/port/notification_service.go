package port

import "github.com/dreschagin/telemetry-pipeline/internal/application/dto"

// NotificationService определяет интерфейс для рассылки в dashboard (Port)
// Реализация будет в Infrastructure слое (WebSocket Hub)
type NotificationService interface {
	// Broadcast отправляет snapshot системных метрик всем подключенным клиентам
	Broadcast(snapshot *dto.SystemSnapshotDTO)

	// BroadcastAlert отправляет alert всем подключенным клиентам
	BroadcastAlert(alert *dto.AlertDTO)

	// ClientCount возвращает количество подключенных клиентов
	ClientCount() int
}
