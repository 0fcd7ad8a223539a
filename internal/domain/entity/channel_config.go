package entity

import (
	"errors"
	"fmt"
)

// ChannelKind - тип канала уведомлений
type ChannelKind string

const (
	ChannelWebhook   ChannelKind = "webhook"
	ChannelSlack     ChannelKind = "slack"
	ChannelEmail     ChannelKind = "email"
	ChannelQueue     ChannelKind = "queue"
	ChannelDashboard ChannelKind = "dashboard"
)

var ErrInvalidChannelConfig = errors.New("invalid channel config")

// requiredParameters перечисляет обязательные параметры по типу канала
var requiredParameters = map[ChannelKind][]string{
	ChannelWebhook:   {"url"},
	ChannelSlack:     {"webhook_url"},
	ChannelEmail:     {"smtp_host", "from", "to"},
	ChannelQueue:     {"subject"},
	ChannelDashboard: {},
}

// ChannelConfig - конфигурация канала. После регистрации не изменяется.
type ChannelConfig struct {
	Kind       ChannelKind
	Enabled    bool
	Parameters map[string]string
}

// NewChannelConfig копирует параметры, чтобы конфиг нельзя было изменить снаружи
func NewChannelConfig(kind ChannelKind, enabled bool, params map[string]string) ChannelConfig {
	p := make(map[string]string, len(params))
	for k, v := range params {
		p[k] = v
	}
	return ChannelConfig{Kind: kind, Enabled: enabled, Parameters: p}
}

// Validate проверяет тип и обязательные параметры
func (c ChannelConfig) Validate() error {
	required, ok := requiredParameters[c.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidChannelConfig, c.Kind)
	}
	for _, key := range required {
		if c.Parameters[key] == "" {
			return fmt.Errorf("%w: %s channel requires %q", ErrInvalidChannelConfig, c.Kind, key)
		}
	}
	return nil
}

// Param возвращает параметр или значение по умолчанию
func (c ChannelConfig) Param(key, fallback string) string {
	if v, ok := c.Parameters[key]; ok && v != "" {
		return v
	}
	return fallback
}
