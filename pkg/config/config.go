package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Sink         SinkConfig
	Store        StoreConfig
	Thresholds   ThresholdConfig
	Alerting     AlertingConfig
	Collectors   CollectorConfig
	Email        EmailConfig
	Slack        SlackConfig
	Webhook      WebhookConfig
	NATS         NATSConfig
	Redis        RedisConfig
	AWS          AWSConfig
	CloudWatch   CloudWatchConfig
	AlertArchive AlertArchiveConfig
	Export       ExportConfig
	Security     SecurityConfig
}

type ServerConfig struct {
	Port            string
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// SinkConfig describes the external long-term metric sink. An empty
// DatabaseURL selects the no-op sink.
type SinkConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BatchSize       int
	FlushInterval   time.Duration
	QueueSize       int
	Workers         int
	RetentionDays   int
}

type StoreConfig struct {
	Capacity          int
	Retention         time.Duration
	PerformanceLedger int
}

type ThresholdConfig struct {
	CPUPercent         float64
	MemoryPercent      float64
	DiskPercent        float64
	ResponseTimeMs     float64
	ErrorRatePercent   float64
	DatabaseResponseMs float64
}

type AlertingConfig struct {
	SuppressionWindow   time.Duration
	ConfirmRatio        float64
	AutoResolveAge      time.Duration
	Retention           time.Duration
	AggregationWindow   time.Duration
	AggregationMax      int
	AggregationKey      []string
	MaintenanceInterval time.Duration
	NotifyWorkers       int
	NotifyTimeout       time.Duration
}

type CollectorConfig struct {
	SystemInterval      time.Duration
	ApplicationInterval time.Duration
	DependencyInterval  time.Duration
	PerformanceInterval time.Duration
	StopTimeout         time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
	To           []string
}

// Enabled reports whether every key needed to send mail is present.
func (c EmailConfig) Enabled() bool {
	return c.SMTPHost != "" && c.From != "" && len(c.To) > 0
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
	Username   string
}

func (c SlackConfig) Enabled() bool { return c.WebhookURL != "" }

type WebhookConfig struct {
	URL     string
	Headers map[string]string
}

func (c WebhookConfig) Enabled() bool { return c.URL != "" }

type NATSConfig struct {
	Enabled       bool
	URL           string
	AlertSubject  string
	SampleSubject string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type CloudWatchConfig struct {
	Enabled       bool
	Namespace     string
	LogGroup      string
	LogStream     string
	FlushInterval time.Duration
}

type AlertArchiveConfig struct {
	Enabled bool
	Table   string
}

type ExportConfig struct {
	S3Enabled    bool
	Bucket       string
	Prefix       string
	UsePathStyle bool
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
	SessionTTL     time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	l := &loader{}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ReadTimeout:     l.duration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    l.duration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: l.duration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		Sink: SinkConfig{
			DatabaseURL:     getEnv("SINK_DATABASE_URL", ""),
			MaxOpenConns:    l.intVal("SINK_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    l.intVal("SINK_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 5 * time.Minute,
			BatchSize:       l.intVal("SINK_BATCH_SIZE", 100),
			FlushInterval:   l.duration("SINK_FLUSH_INTERVAL", "2s"),
			QueueSize:       l.intVal("SINK_QUEUE_SIZE", 4096),
			Workers:         l.intVal("SINK_WORKERS", 2),
			RetentionDays:   l.intVal("SINK_RETENTION_DAYS", 7),
		},
		Store: StoreConfig{
			Capacity:          l.intVal("METRICS_STORE_CAPACITY", 10000),
			Retention:         l.duration("METRICS_RETENTION", "24h"),
			PerformanceLedger: l.intVal("PERFORMANCE_LEDGER_SIZE", 1000),
		},
		Thresholds: ThresholdConfig{
			CPUPercent:         l.floatVal("THRESHOLD_CPU_PERCENT", 80),
			MemoryPercent:      l.floatVal("THRESHOLD_MEMORY_PERCENT", 85),
			DiskPercent:        l.floatVal("THRESHOLD_DISK_PERCENT", 90),
			ResponseTimeMs:     l.floatVal("THRESHOLD_RESPONSE_TIME_MS", 3000),
			ErrorRatePercent:   l.floatVal("THRESHOLD_ERROR_RATE_PERCENT", 5),
			DatabaseResponseMs: l.floatVal("THRESHOLD_DATABASE_RESPONSE_MS", 1000),
		},
		Alerting: AlertingConfig{
			SuppressionWindow:   l.duration("ALERT_SUPPRESSION_WINDOW", "15m"),
			ConfirmRatio:        l.floatVal("ALERT_CONFIRM_RATIO", 0.8),
			AutoResolveAge:      l.duration("ALERT_AUTO_RESOLVE_AGE", "1h"),
			Retention:           l.duration("ALERT_RETENTION", "24h"),
			AggregationWindow:   l.duration("ALERT_AGGREGATION_WINDOW", "15m"),
			AggregationMax:      l.intVal("ALERT_AGGREGATION_MAX", 5),
			AggregationKey:      splitCSV(getEnv("ALERT_AGGREGATION_KEY", "source,severity")),
			MaintenanceInterval: l.duration("MAINTENANCE_INTERVAL", "30s"),
			NotifyWorkers:       l.intVal("NOTIFY_WORKERS", 4),
			NotifyTimeout:       l.duration("NOTIFY_TIMEOUT", "10s"),
		},
		Collectors: CollectorConfig{
			SystemInterval:      l.duration("COLLECTOR_SYSTEM_INTERVAL", "30s"),
			ApplicationInterval: l.duration("COLLECTOR_APPLICATION_INTERVAL", "60s"),
			DependencyInterval:  l.duration("COLLECTOR_DEPENDENCY_INTERVAL", "60s"),
			PerformanceInterval: l.duration("COLLECTOR_PERFORMANCE_INTERVAL", "60s"),
			StopTimeout:         l.duration("COLLECTOR_STOP_TIMEOUT", "5s"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     l.intVal("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("ALERT_FROM_EMAIL", ""),
			To:           splitCSV(getEnv("ALERT_TO_EMAILS", "")),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			Channel:    getEnv("SLACK_CHANNEL", "#alerts"),
			Username:   getEnv("SLACK_USERNAME", "Telemetry Bot"),
		},
		Webhook: WebhookConfig{
			URL:     getEnv("ALERT_WEBHOOK_URL", ""),
			Headers: l.headers("ALERT_WEBHOOK_HEADERS"),
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			AlertSubject:  getEnv("NATS_ALERT_SUBJECT", "alerts.notifications"),
			SampleSubject: getEnv("NATS_SAMPLE_SUBJECT", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       l.intVal("REDIS_DB", 0),
			CacheTTL: l.duration("REDIS_CACHE_TTL", "30s"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("AWS_ENDPOINT_URL", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		CloudWatch: CloudWatchConfig{
			Enabled:       getEnvBool("CLOUDWATCH_ENABLED", false),
			Namespace:     getEnv("CLOUDWATCH_NAMESPACE", "TelemetryPipeline"),
			LogGroup:      getEnv("CLOUDWATCH_LOG_GROUP", "/telemetry-pipeline/app"),
			LogStream:     getEnv("CLOUDWATCH_LOG_STREAM", "default"),
			FlushInterval: l.duration("CLOUDWATCH_FLUSH_INTERVAL", "10s"),
		},
		AlertArchive: AlertArchiveConfig{
			Enabled: getEnvBool("ALERT_ARCHIVE_ENABLED", false),
			Table:   getEnv("ALERT_ARCHIVE_TABLE", "telemetry_alerts"),
		},
		Export: ExportConfig{
			S3Enabled:    getEnvBool("EXPORT_S3_ENABLED", false),
			Bucket:       getEnv("EXPORT_S3_BUCKET", ""),
			Prefix:       getEnv("EXPORT_S3_PREFIX", "exports"),
			UsePathStyle: getEnvBool("EXPORT_S3_USE_PATH_STYLE", true),
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
			SessionTTL:     l.duration("AUTH_SESSION_TTL", "12h"),
			RateLimitRPS:   l.floatVal("RATE_LIMIT_RPS", 20),
			RateLimitBurst: l.intVal("RATE_LIMIT_BURST", 40),
		},
	}

	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that the individual parsers cannot.
func (c *Config) Validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.Store.Capacity <= 0 {
		return fmt.Errorf("METRICS_STORE_CAPACITY must be positive, got %d", c.Store.Capacity)
	}
	if c.Store.PerformanceLedger <= 0 {
		return fmt.Errorf("PERFORMANCE_LEDGER_SIZE must be positive, got %d", c.Store.PerformanceLedger)
	}
	if c.Alerting.ConfirmRatio <= 0 || c.Alerting.ConfirmRatio > 1 {
		return fmt.Errorf("ALERT_CONFIRM_RATIO must be in (0, 1], got %v", c.Alerting.ConfirmRatio)
	}
	if c.Alerting.AggregationMax <= 0 {
		return fmt.Errorf("ALERT_AGGREGATION_MAX must be positive, got %d", c.Alerting.AggregationMax)
	}
	if c.Export.S3Enabled && c.Export.Bucket == "" {
		return fmt.Errorf("EXPORT_S3_BUCKET is required when EXPORT_S3_ENABLED=true")
	}
	return nil
}

// loader keeps the first parse error so Load can build the whole struct in one literal.
type loader struct {
	err error
}

func (l *loader) fail(key string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (l *loader) duration(key, defaultValue string) time.Duration {
	d, err := parseDuration(getEnv(key, defaultValue))
	if err != nil {
		l.fail(key, err)
	}
	return d
}

func (l *loader) intVal(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		l.fail(key, err)
		return defaultValue
	}
	return v
}

func (l *loader) floatVal(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		l.fail(key, err)
		return defaultValue
	}
	return v
}

func (l *loader) headers(key string) map[string]string {
	raw := os.Getenv(key)
	if raw == "" {
		return map[string]string{}
	}
	headers := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		l.fail(key, err)
		return map[string]string{}
	}
	return headers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
