package channel

import (
	"context"
	"strings"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// HeaderParamPrefix marks webhook parameters that are sent as HTTP headers.
const HeaderParamPrefix = "header."

type webhookPayload struct {
	AlertID   string                 `json:"alert_id"`
	Severity  string                 `json:"severity"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Webhook posts the alert as JSON to a generic HTTP callback.
type Webhook struct {
	url     string
	headers map[string]string
	client  HTTPDoer
}

func NewWebhook(cfg entity.ChannelConfig, client HTTPDoer) *Webhook {
	headers := make(map[string]string)
	for k, v := range cfg.Parameters {
		if name := strings.TrimPrefix(k, HeaderParamPrefix); name != k && name != "" {
			headers[name] = v
		}
	}
	return &Webhook{
		url:     cfg.Param("url", ""),
		headers: headers,
		client:  defaultClient(client),
	}
}

func (w *Webhook) Kind() entity.ChannelKind { return entity.ChannelWebhook }

func (w *Webhook) Send(ctx context.Context, alert *dto.AlertDTO) error {
	metadata := alert.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return postJSON(ctx, w.client, w.url, w.headers, webhookPayload{
		AlertID:   alert.ID,
		Severity:  alert.Severity,
		Title:     alert.Title,
		Message:   alert.Message,
		Source:    alert.Source,
		Timestamp: alert.Timestamp.UTC().Format(time.RFC3339),
		Metadata:  metadata,
	})
}
