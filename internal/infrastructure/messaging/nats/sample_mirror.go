package nats

import (
	"context"
	"errors"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// SampleBatch is the payload published for every sink batch.
type SampleBatch struct {
	PublishedAt time.Time       `json:"published_at"`
	Samples     []dto.SampleDTO `json:"samples"`
}

// SampleMirror is a repository.MetricSink that fans samples out on a subject.
type SampleMirror struct {
	publisher port.EventPublisher
	subject   string
	now       func() time.Time
}

func NewSampleMirror(publisher port.EventPublisher, subject string) (*SampleMirror, error) {
	if publisher == nil {
		return nil, errors.New("sample mirror: publisher is required")
	}
	if subject == "" {
		return nil, errors.New("sample mirror: subject is required")
	}
	return &SampleMirror{publisher: publisher, subject: subject, now: time.Now}, nil
}

func (m *SampleMirror) Name() string { return "nats" }

func (m *SampleMirror) WriteBatch(ctx context.Context, samples []entity.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	return m.publisher.PublishEvent(ctx, m.subject, SampleBatch{
		PublishedAt: m.now().UTC(),
		Samples:     dto.ToSampleDTOs(samples),
	})
}

func (m *SampleMirror) Ping(ctx context.Context) error {
	return m.publisher.Ping(ctx)
}
