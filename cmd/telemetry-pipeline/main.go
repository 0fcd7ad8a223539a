package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// Application
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/application/usecase"

	// Domain
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/repository"

	// Infrastructure
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/awsconfig"
	redisCache "github.com/dreschagin/telemetry-pipeline/internal/infrastructure/cache/redis"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/collector"
	natsInfra "github.com/dreschagin/telemetry-pipeline/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/notification/channel"
	wsInfra "github.com/dreschagin/telemetry-pipeline/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/observability/metrics"
	dynamodbArchive "github.com/dreschagin/telemetry-pipeline/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/persistence/multi"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/persistence/noop"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/telemetry-pipeline/internal/infrastructure/storage/s3"

	// Telemetry core
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/alerting"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/notify"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/store"

	// Interfaces
	httpInterface "github.com/dreschagin/telemetry-pipeline/internal/interfaces/http"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/handler"
	"github.com/dreschagin/telemetry-pipeline/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/telemetry-pipeline/pkg/config"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.Server.LogLevel)
	log.Info("Starting Telemetry Pipeline")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsOpts := awsconfig.Options{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	}

	var probes []port.DependencyProbe

	// 3. Sinks: Postgres (или no-op), CloudWatch, зеркало в NATS
	var sinks []repository.MetricSink
	var history repository.MetricHistory

	var pgSink *postgres.MetricSink
	if cfg.Sink.DatabaseURL != "" {
		db, openErr := postgres.Open(ctx, cfg.Sink.DatabaseURL, cfg.Sink.MaxOpenConns)
		if openErr != nil {
			log.Error("Failed to connect to sink database", openErr)
			os.Exit(1)
		}
		db.SetMaxIdleConns(cfg.Sink.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Sink.ConnMaxLifetime)

		pgSink = postgres.NewMetricSink(db)
		if err := pgSink.EnsureSchema(ctx); err != nil {
			log.Error("Failed to ensure sink schema", err)
			os.Exit(1)
		}
		defer pgSink.Close()

		sinks = append(sinks, pgSink)
		history = pgSink
		probes = append(probes, pgSink)
		log.Info("Postgres sink connected")
	} else {
		log.Warn("SINK_DATABASE_URL is empty, long-term history is disabled")
	}

	var cwMetrics *cloudwatch.MetricsPublisher
	var cwLogs *cloudwatch.LogsPublisher
	if cfg.CloudWatch.Enabled {
		cwMetrics, err = cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			Namespace:         cfg.CloudWatch.Namespace,
			AWS:               awsOpts,
			StorageResolution: 60,
		})
		if err != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", err)
			os.Exit(1)
		}
		sinks = append(sinks, cwMetrics)
		log.Info("CloudWatch metrics sink initialized", "namespace", cfg.CloudWatch.Namespace)

		cwLogs, err = cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:  cfg.CloudWatch.LogGroup,
			LogStreamName: cfg.CloudWatch.LogStream,
			AWS:           awsOpts,
			FlushInterval: cfg.CloudWatch.FlushInterval,
			AutoCreate:    true,
		})
		if err != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", err)
			os.Exit(1)
		}
		log.SetLogPublisher(cwLogs)
		log.Info("CloudWatch logs publisher initialized", "group", cfg.CloudWatch.LogGroup)
	} else {
		log.Warn("CloudWatch publishing is disabled")
	}

	// 4. NATS публикация событий
	var natsPublisher *natsInfra.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = natsInfra.NewNATSPublisher(natsInfra.Config{URL: cfg.NATS.URL}, log)
		if err != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", err.Error())
			natsPublisher = nil
		} else {
			defer natsPublisher.Close()
			probes = append(probes, port.ProbeFunc{ProbeName: "nats", Fn: natsPublisher.Ping})

			if cfg.NATS.SampleSubject != "" {
				mirror, mirrorErr := natsInfra.NewSampleMirror(natsPublisher, cfg.NATS.SampleSubject)
				if mirrorErr != nil {
					log.Error("Failed to create NATS sample mirror", mirrorErr)
					os.Exit(1)
				}
				sinks = append(sinks, mirror)
			}
		}
	} else {
		log.Warn("NATS event publishing is disabled")
	}

	var sink repository.MetricSink
	switch len(sinks) {
	case 0:
		sink = noop.NewMetricSink()
	case 1:
		sink = sinks[0]
	default:
		sink = multi.NewMetricSink(sinks...)
	}

	// 5. Redis кеш истории
	var cache port.Cache
	if cfg.Redis.Enabled {
		rc, cacheErr := redisCache.NewRedisCache(ctx, redisCache.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.CacheTTL,
		})
		if cacheErr != nil {
			log.Warn("Failed to connect to Redis, history cache disabled", "error", cacheErr.Error())
		} else {
			defer rc.Close()
			cache = rc
			probes = append(probes, port.ProbeFunc{ProbeName: "redis", Fn: rc.Ping})
			log.Info("Redis cache initialized", "addr", cfg.Redis.Addr())
		}
	}

	// 6. Архив алертов в DynamoDB
	var archive port.AlertArchive
	if cfg.AlertArchive.Enabled {
		a, archiveErr := dynamodbArchive.NewAlertArchive(ctx, dynamodbArchive.Config{
			TableName: cfg.AlertArchive.Table,
			AWS:       awsOpts,
			TTL:       30 * 24 * time.Hour,
		})
		if archiveErr != nil {
			log.Error("Failed to initialize alert archive", archiveErr)
			os.Exit(1)
		}
		archive = a
		probes = append(probes, port.ProbeFunc{ProbeName: "dynamodb", Fn: a.Ping})
		log.Info("Alert archive initialized", "table", cfg.AlertArchive.Table)
	}

	// 7. Prometheus self-metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	selfMetrics := metrics.New(registry)

	// 8. Пайплайн
	opts := telemetry.Options{
		Store: store.Config{Capacity: cfg.Store.Capacity},
		Sink:  sink,
		SinkWriter: store.SinkWriterConfig{
			QueueSize:     cfg.Sink.QueueSize,
			Workers:       cfg.Sink.Workers,
			BatchSize:     cfg.Sink.BatchSize,
			FlushInterval: cfg.Sink.FlushInterval,
		},
		SinkRetention: time.Duration(cfg.Sink.RetentionDays) * 24 * time.Hour,
		LedgerSize:    cfg.Store.PerformanceLedger,
		Retention:     cfg.Store.Retention,
		Alerting: alerting.Config{
			SuppressionWindow:   cfg.Alerting.SuppressionWindow,
			ConfirmRatio:        cfg.Alerting.ConfirmRatio,
			AutoResolveAge:      cfg.Alerting.AutoResolveAge,
			Retention:           cfg.Alerting.Retention,
			ErrorRateThreshold:  cfg.Thresholds.ErrorRatePercent,
			MaintenanceInterval: cfg.Alerting.MaintenanceInterval,
		},
		Notify: notify.Config{
			Workers:           cfg.Alerting.NotifyWorkers,
			Timeout:           cfg.Alerting.NotifyTimeout,
			AggregationWindow: cfg.Alerting.AggregationWindow,
			AggregationMax:    cfg.Alerting.AggregationMax,
			AggregationKey:    cfg.Alerting.AggregationKey,
		},
		StopTimeout: cfg.Collectors.StopTimeout,
		Metrics:     selfMetrics,
		Probes:      probes,
	}
	if history != nil {
		opts.History = history
	}
	if archive != nil {
		opts.Archive = archive
	}
	pipeline := telemetry.New(opts, log)

	// 9. Каналы уведомлений
	hub := wsInfra.NewHub(log)
	go hub.Run(ctx)
	log.Info("WebSocket hub started")

	httpClient := &http.Client{Timeout: cfg.Alerting.NotifyTimeout}
	registerChannel := func(name string, ch notify.Channel, chCfg entity.ChannelConfig) {
		if err := pipeline.RegisterChannel(name, ch, chCfg); err != nil {
			log.Error("Failed to register notification channel", err, "channel", name)
			return
		}
		log.Info("Notification channel registered", "channel", name)
	}

	dashboardCfg := entity.NewChannelConfig(entity.ChannelDashboard, true, nil)
	registerChannel("dashboard", wsInfra.NewDashboardChannel(hub), dashboardCfg)

	if cfg.Email.Enabled() {
		emailCfg := entity.NewChannelConfig(entity.ChannelEmail, true, map[string]string{
			"smtp_host":     cfg.Email.SMTPHost,
			"smtp_port":     strconv.Itoa(cfg.Email.SMTPPort),
			"smtp_user":     cfg.Email.SMTPUser,
			"smtp_password": cfg.Email.SMTPPassword,
			"from":          cfg.Email.From,
			"to":            strings.Join(cfg.Email.To, ","),
		})
		registerChannel("email", channel.NewEmail(emailCfg, nil), emailCfg)
	}
	if cfg.Slack.Enabled() {
		slackCfg := entity.NewChannelConfig(entity.ChannelSlack, true, map[string]string{
			"webhook_url": cfg.Slack.WebhookURL,
			"channel":     cfg.Slack.Channel,
			"username":    cfg.Slack.Username,
		})
		registerChannel("slack", channel.NewSlack(slackCfg, httpClient), slackCfg)
	}
	if cfg.Webhook.Enabled() {
		params := map[string]string{"url": cfg.Webhook.URL}
		for k, v := range cfg.Webhook.Headers {
			params[channel.HeaderParamPrefix+k] = v
		}
		webhookCfg := entity.NewChannelConfig(entity.ChannelWebhook, true, params)
		registerChannel("webhook", channel.NewWebhook(webhookCfg, httpClient), webhookCfg)
	}
	if natsPublisher != nil && cfg.NATS.AlertSubject != "" {
		queueCfg := entity.NewChannelConfig(entity.ChannelQueue, true, map[string]string{
			"subject": cfg.NATS.AlertSubject,
		})
		registerChannel("queue", channel.NewQueue(queueCfg, natsPublisher), queueCfg)
	}

	// 10. Сборщики
	collectSystemUC := usecase.NewCollectMetricsUseCase(
		collector.NewSystemMetricsCollector("/"),
		pipeline,
		hub,
		nil,
		log,
	)
	collectRuntimeUC := usecase.NewCollectMetricsUseCase(
		collector.NewRuntimeCollector(pipeline.StartedAt(), time.Now),
		pipeline,
		nil,
		nil,
		log,
	)
	dependencyUC := usecase.NewCheckDependencyHealthUseCase(
		probes,
		pipeline,
		usecase.CheckDependencyHealthConfig{DatabaseProbe: "postgres"},
		log,
	)
	performanceUC := usecase.NewCollectPerformanceMetricsUseCase(pipeline, pipeline, 5*time.Minute, log)

	collectorsToRegister := []struct {
		name     string
		fn       func(context.Context) error
		interval time.Duration
	}{
		{"system", collectSystemUC.Execute, cfg.Collectors.SystemInterval},
		{"application", collectRuntimeUC.Execute, cfg.Collectors.ApplicationInterval},
		{"dependencies", dependencyUC.Run, cfg.Collectors.DependencyInterval},
		{"performance", performanceUC.Execute, cfg.Collectors.PerformanceInterval},
	}
	for _, c := range collectorsToRegister {
		if err := pipeline.RegisterCollector(c.name, c.fn, c.interval); err != nil {
			log.Error("Failed to register collector", err, "collector", c.name)
			os.Exit(1)
		}
	}

	// 11. Правила по умолчанию
	defaultRules := alerting.DefaultRules(alerting.Thresholds{
		CPUPercent:         cfg.Thresholds.CPUPercent,
		MemoryPercent:      cfg.Thresholds.MemoryPercent,
		DiskPercent:        cfg.Thresholds.DiskPercent,
		ResponseTimeMs:     cfg.Thresholds.ResponseTimeMs,
		DatabaseResponseMs: cfg.Thresholds.DatabaseResponseMs,
	})
	for _, rule := range defaultRules {
		if _, err := pipeline.AddThresholdRule(rule); err != nil {
			log.Warn("Failed to add default rule", "metric", rule.MetricName, "error", err)
		}
	}

	// Gauges, которые читаются на scrape
	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"store_samples", "Samples currently held in the in-memory store.", func() float64 {
			return float64(pipeline.Store().Stats().Size)
		}},
		{"alerts_active", "Unresolved alerts.", func() float64 {
			return float64(pipeline.Engine().ActiveCount())
		}},
		{"websocket_clients", "Connected dashboard clients.", func() float64 {
			return float64(hub.ClientCount())
		}},
	}
	for _, g := range gauges {
		if err := selfMetrics.WatchGauge(g.name, g.help, g.fn); err != nil {
			log.Warn("Failed to register gauge", "name", g.name, "error", err)
		}
	}

	// 12. HTTP
	var exportStorage port.ExportStorage
	if cfg.Export.S3Enabled {
		storage, storageErr := s3storage.NewExportStorage(ctx, s3storage.Config{
			Bucket:       cfg.Export.Bucket,
			Prefix:       cfg.Export.Prefix,
			AWS:          awsOpts,
			UsePathStyle: cfg.Export.UsePathStyle,
		})
		if storageErr != nil {
			log.Error("Failed to initialize export storage", storageErr)
			os.Exit(1)
		}
		exportStorage = storage
	} else {
		log.Warn("S3 export storage is disabled, uploads will be rejected")
	}

	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
		OnReject:    selfMetrics.AuthFailures.Inc,
	}
	historyUC := usecase.NewGetHistoricalSamplesUseCase(pipeline, cache, log)
	exportUC := usecase.NewExportMetricsUseCase(pipeline, exportStorage, log)

	var limiter *middleware.IPRateLimiter
	if cfg.Security.RateLimitRPS > 0 {
		limiter = middleware.NewIPRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
		go limiter.Run(ctx)
	}

	router := httpInterface.NewRouter(httpInterface.Handlers{
		System:    handler.NewSystemAPIHandler(pipeline, dependencyUC, log),
		Metrics:   handler.NewMetricsAPIHandler(pipeline, historyUC, log),
		Alerts:    handler.NewAlertsAPIHandler(pipeline, log),
		Analytics: handler.NewAnalyticsAPIHandler(pipeline, exportUC, log),
		WebSocket: handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, authConfig, log),
		Auth:      handler.NewAuthAPIHandler(authConfig, cfg.Security.SessionTTL, log),
	}, httpInterface.Options{
		Requests:    pipeline,
		SelfMetrics: selfMetrics,
		Registry:    registry,
		RateLimiter: limiter,
	}, cfg.Security, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 13. Запускаем фоновые процессы
	pipeline.StartCollection()
	pipeline.StartBackgroundTasks(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 14. Graceful shutdown
	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	if err := pipeline.Close(shutdownCtx); err != nil {
		log.Error("Pipeline shutdown error", err)
	}
	cancel()

	if cwLogs != nil {
		log.Info("Flushing CloudWatch logs buffer...")
		if err := cwLogs.Close(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush CloudWatch logs: %v\n", err)
		}
	}

	log.Info("Telemetry pipeline stopped gracefully")
}
