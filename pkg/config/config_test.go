package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Capacity != 10000 {
		t.Errorf("expected capacity 10000, got %d", cfg.Store.Capacity)
	}
	if cfg.Alerting.SuppressionWindow != 15*time.Minute {
		t.Errorf("expected 15m suppression, got %v", cfg.Alerting.SuppressionWindow)
	}
	if cfg.Alerting.ConfirmRatio != 0.8 {
		t.Errorf("expected confirm ratio 0.8, got %v", cfg.Alerting.ConfirmRatio)
	}
	if cfg.Alerting.AggregationMax != 5 {
		t.Errorf("expected aggregation cap 5, got %d", cfg.Alerting.AggregationMax)
	}
	if got := strings.Join(cfg.Alerting.AggregationKey, ","); got != "source,severity" {
		t.Errorf("expected aggregation key source,severity, got %s", got)
	}
	if cfg.Thresholds.CPUPercent != 80 || cfg.Thresholds.DiskPercent != 90 {
		t.Errorf("unexpected thresholds: %+v", cfg.Thresholds)
	}
	if cfg.Email.Enabled() || cfg.Slack.Enabled() || cfg.Webhook.Enabled() {
		t.Errorf("expected no channels enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("METRICS_STORE_CAPACITY", "500")
	t.Setenv("ALERT_SUPPRESSION_WINDOW", "5m")
	t.Setenv("ALERT_TO_EMAILS", "ops@example.com, dev@example.com")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("ALERT_FROM_EMAIL", "alerts@example.com")
	t.Setenv("ALERT_WEBHOOK_URL", "http://hooks.local/alert")
	t.Setenv("ALERT_WEBHOOK_HEADERS", `{"X-Token":"abc"}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Capacity != 500 {
		t.Errorf("expected capacity 500, got %d", cfg.Store.Capacity)
	}
	if cfg.Alerting.SuppressionWindow != 5*time.Minute {
		t.Errorf("expected 5m, got %v", cfg.Alerting.SuppressionWindow)
	}
	if len(cfg.Email.To) != 2 || cfg.Email.To[1] != "dev@example.com" {
		t.Errorf("unexpected recipients: %v", cfg.Email.To)
	}
	if !cfg.Email.Enabled() {
		t.Errorf("expected email channel enabled")
	}
	if cfg.Webhook.Headers["X-Token"] != "abc" {
		t.Errorf("unexpected headers: %v", cfg.Webhook.Headers)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad duration", key: "ALERT_SUPPRESSION_WINDOW", val: "soon"},
		{name: "bad int", key: "METRICS_STORE_CAPACITY", val: "many"},
		{name: "bad ratio", key: "ALERT_CONFIRM_RATIO", val: "1.5"},
		{name: "bad headers", key: "ALERT_WEBHOOK_HEADERS", val: "{not json"},
		{name: "bad session ttl", key: "AUTH_SESSION_TTL", val: "forever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadAuthRequiresToken(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when auth is enabled without token")
	}
}
