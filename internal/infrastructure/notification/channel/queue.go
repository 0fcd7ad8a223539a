package channel

import (
	"context"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// Queue publishes the alert JSON on a message broker subject.
type Queue struct {
	publisher port.EventPublisher
	subject   string
}

func NewQueue(cfg entity.ChannelConfig, publisher port.EventPublisher) *Queue {
	return &Queue{
		publisher: publisher,
		subject:   cfg.Param("subject", ""),
	}
}

func (q *Queue) Kind() entity.ChannelKind { return entity.ChannelQueue }

func (q *Queue) Send(ctx context.Context, alert *dto.AlertDTO) error {
	return q.publisher.PublishEvent(ctx, q.subject, alert)
}
