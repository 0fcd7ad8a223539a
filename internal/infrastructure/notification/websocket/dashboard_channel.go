package websocket

import (
	"context"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// DashboardChannel доставляет алерты подключенным dashboard клиентам
type DashboardChannel struct {
	hub *Hub
}

func NewDashboardChannel(hub *Hub) *DashboardChannel {
	return &DashboardChannel{hub: hub}
}

func (c *DashboardChannel) Kind() entity.ChannelKind { return entity.ChannelDashboard }

// Send не ждет доставки клиентам; при переполненной очереди сообщение теряется
func (c *DashboardChannel) Send(ctx context.Context, alert *dto.AlertDTO) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.hub.BroadcastAlert(alert)
	return nil
}
