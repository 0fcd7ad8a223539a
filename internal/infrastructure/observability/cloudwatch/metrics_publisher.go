package cloudwatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/awsconfig"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000
	maxDimensions        = 30
	maxRetries           = 3
	initialBackoff       = 100 * time.Millisecond
)

// metricsAPI is the subset of the CloudWatch client used by the publisher.
type metricsAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
	ListMetrics(ctx context.Context, in *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
}

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string            // CloudWatch namespace (e.g., "Telemetry/Pipeline")
	AWS               awsconfig.Options // Region, endpoint and credentials
	DefaultDimensions map[string]string // Dimensions added to every datum
	StorageResolution int32             // 1 or 60 seconds
}

// MetricsPublisher is a repository.MetricSink that writes samples as CloudWatch datums.
// Batching and queueing happen in the store's SinkWriter, so WriteBatch publishes synchronously.
type MetricsPublisher struct {
	client            metricsAPI
	namespace         string
	defaultDimensions map[string]string
	storageResolution int32
}

// NewMetricsPublisher creates a new CloudWatch metrics publisher.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}

	awsCfg, err := awsconfig.Load(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	return newMetricsPublisher(cloudwatch.NewFromConfig(awsCfg), cfg), nil
}

func newMetricsPublisher(client metricsAPI, cfg MetricsPublisherConfig) *MetricsPublisher {
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60
	}
	return &MetricsPublisher{
		client:            client,
		namespace:         cfg.Namespace,
		defaultDimensions: cfg.DefaultDimensions,
		storageResolution: cfg.StorageResolution,
	}
}

func (p *MetricsPublisher) Name() string { return "cloudwatch" }

// WriteBatch publishes samples in chunks of maxMetricsPerRequest.
func (p *MetricsPublisher) WriteBatch(ctx context.Context, samples []entity.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	data := make([]types.MetricDatum, 0, len(samples))
	for _, s := range samples {
		data = append(data, p.convertToDatum(s))
	}

	for i := 0; i < len(data); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(data) {
			end = len(data)
		}
		if err := p.publishBatchWithRetry(ctx, data[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}
	return nil
}

// Ping lists a single metric in the namespace to verify credentials and connectivity.
func (p *MetricsPublisher) Ping(ctx context.Context) error {
	_, err := p.client.ListMetrics(ctx, &cloudwatch.ListMetricsInput{
		Namespace: aws.String(p.namespace),
	})
	if err != nil {
		return fmt.Errorf("cloudwatch ping: %w", err)
	}
	return nil
}

// publishBatchWithRetry publishes a batch of metrics with exponential backoff retry.
func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// convertToDatum maps a sample to a datum. Tags become dimensions, sorted by key
// and capped at the CloudWatch dimension limit.
func (p *MetricsPublisher) convertToDatum(s entity.Sample) types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+len(s.Tags())+1)
	dimensions = appendDimensions(dimensions, p.defaultDimensions)
	dimensions = append(dimensions, types.Dimension{
		Name:  aws.String("Kind"),
		Value: aws.String(s.Kind().String()),
	})
	dimensions = appendDimensions(dimensions, s.Tags())
	if len(dimensions) > maxDimensions {
		dimensions = dimensions[:maxDimensions]
	}

	datum := types.MetricDatum{
		MetricName: aws.String(s.Name()),
		Value:      aws.Float64(s.Value()),
		Unit:       mapUnit(s.Unit()),
		Timestamp:  aws.Time(s.Timestamp()),
		Dimensions: dimensions,
	}
	if p.storageResolution > 0 {
		datum.StorageResolution = aws.Int32(p.storageResolution)
	}
	return datum
}

func appendDimensions(dst []types.Dimension, kv map[string]string) []types.Dimension {
	keys := make([]string, 0, len(kv))
	for k, v := range kv {
		if k == "" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dst = append(dst, types.Dimension{Name: aws.String(k), Value: aws.String(kv[k])})
	}
	return dst
}

// mapUnit maps sample units to CloudWatch StandardUnit.
func mapUnit(unit string) types.StandardUnit {
	switch unit {
	case "%":
		return types.StandardUnitPercent
	case "MB/s":
		return types.StandardUnitMegabytesSecond
	case "GB/s":
		return types.StandardUnitGigabytesSecond
	case "KB/s":
		return types.StandardUnitKilobytesSecond
	case "bytes":
		return types.StandardUnitBytes
	case "KB":
		return types.StandardUnitKilobytes
	case "MB":
		return types.StandardUnitMegabytes
	case "GB":
		return types.StandardUnitGigabytes
	case "ms":
		return types.StandardUnitMilliseconds
	case "s":
		return types.StandardUnitSeconds
	case "count":
		return types.StandardUnitCount
	default:
		return types.StandardUnitNone
	}
}
