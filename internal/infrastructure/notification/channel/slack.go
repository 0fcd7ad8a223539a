package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

const (
	defaultSlackChannel  = "#alerts"
	defaultSlackUsername = "Telemetry Bot"
	slackFooter          = "Telemetry Pipeline"
)

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackPayload struct {
	Channel     string            `json:"channel"`
	Username    string            `json:"username"`
	Attachments []slackAttachment `json:"attachments"`
}

// Slack posts to an incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	username   string
	client     HTTPDoer
}

func NewSlack(cfg entity.ChannelConfig, client HTTPDoer) *Slack {
	return &Slack{
		webhookURL: cfg.Param("webhook_url", ""),
		channel:    cfg.Param("channel", defaultSlackChannel),
		username:   cfg.Param("username", defaultSlackUsername),
		client:     defaultClient(client),
	}
}

func (s *Slack) Kind() entity.ChannelKind { return entity.ChannelSlack }

func (s *Slack) Send(ctx context.Context, alert *dto.AlertDTO) error {
	return postJSON(ctx, s.client, s.webhookURL, nil, slackPayload{
		Channel:  s.channel,
		Username: s.username,
		Attachments: []slackAttachment{{
			Color: slackColor(valueobject.Severity(alert.Severity)),
			Title: fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Title),
			Text:  alert.Message,
			Fields: []slackField{
				{Title: "Source", Value: alert.Source, Short: true},
				{Title: "Time", Value: alert.Timestamp.UTC().Format("2006-01-02 15:04:05"), Short: true},
			},
			Footer: slackFooter,
			TS:     alert.Timestamp.Unix(),
		}},
	})
}

func slackColor(s valueobject.Severity) string {
	switch s {
	case valueobject.SeverityLow:
		return "good"
	case valueobject.SeverityHigh, valueobject.SeverityCritical:
		return "danger"
	default:
		return "warning"
	}
}
