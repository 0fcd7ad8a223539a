package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/infrastructure/awsconfig"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 500
	maxBatchWriteSize = 25
	maxBatchRetries   = 5

	attrPK             = "PK"
	attrSK             = "SK"
	attrID             = "id"
	attrSeverity       = "severity"
	attrTitle          = "title"
	attrMessage        = "message"
	attrSource         = "source"
	attrMetadata       = "metadata"
	attrCreatedAt      = "created_at"
	attrResolvedAt     = "resolved_at"
	attrResolutionNote = "resolution_note"
	attrExpiresAt      = "expires_at"
)

type api interface {
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type Config struct {
	TableName string
	AWS       awsconfig.Options
	// TTL sets expires_at on archived items; zero keeps them forever.
	TTL time.Duration
}

// AlertArchive stores resolved alerts in a single DynamoDB table keyed by
// source (PK) and creation time plus id (SK).
type AlertArchive struct {
	client    api
	tableName string
	ttl       time.Duration
	retryWait time.Duration
}

func NewAlertArchive(ctx context.Context, cfg Config) (*AlertArchive, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	awsCfg, err := awsconfig.Load(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	return newAlertArchive(dynamodb.NewFromConfig(awsCfg), cfg), nil
}

func newAlertArchive(client api, cfg Config) *AlertArchive {
	return &AlertArchive{
		client:    client,
		tableName: strings.TrimSpace(cfg.TableName),
		ttl:       cfg.TTL,
		retryWait: 100 * time.Millisecond,
	}
}

func (a *AlertArchive) PutBatch(ctx context.Context, alerts []entity.AlertSnapshot) error {
	if len(alerts) == 0 {
		return nil
	}

	for start := 0; start < len(alerts); start += maxBatchWriteSize {
		end := start + maxBatchWriteSize
		if end > len(alerts) {
			end = len(alerts)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, alert := range alerts[start:end] {
			item, err := a.toItem(alert)
			if err != nil {
				return err
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		if err := a.writeBatchWithRetry(ctx, requests); err != nil {
			return err
		}
	}

	return nil
}

// ListBySource returns archived alerts of one source created at or after since, newest first.
func (a *AlertArchive) ListBySource(ctx context.Context, source string, since time.Time, limit int) ([]entity.AlertSnapshot, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var sinceMS int64
	if !since.IsZero() {
		sinceMS = since.UTC().UnixMilli()
	}

	keyCondition := "#pk = :pk AND #sk >= :from"
	input := &dynamodb.QueryInput{
		TableName:              &a.tableName,
		KeyConditionExpression: &keyCondition,
		ScanIndexForward:       boolPointer(false),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrPK,
			"#sk": attrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: buildPK(source)},
			":from": &types.AttributeValueMemberS{Value: buildSortLowerBound(sinceMS)},
		},
	}

	out := make([]entity.AlertSnapshot, 0, limit)
	for len(out) < limit {
		input.Limit = int32Pointer(int32(limit - len(out)))

		output, err := a.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query failed: %w", err)
		}

		for _, raw := range output.Items {
			alert, err := fromItem(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, alert)
		}

		if len(output.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	return out, nil
}

func (a *AlertArchive) Ping(ctx context.Context) error {
	_, err := a.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &a.tableName})
	if err != nil {
		return fmt.Errorf("dynamodb describe table: %w", err)
	}
	return nil
}

func (a *AlertArchive) writeBatchWithRetry(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{
		a.tableName: requests,
	}

	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		output, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("dynamodb batch write failed: %w", err)
		}

		if len(output.UnprocessedItems) == 0 {
			return nil
		}

		pending = output.UnprocessedItems
		select {
		case <-time.After(time.Duration(attempt+1) * a.retryWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("dynamodb batch write has unprocessed items after retries")
}

func (a *AlertArchive) toItem(alert entity.AlertSnapshot) (map[string]types.AttributeValue, error) {
	if strings.TrimSpace(alert.ID) == "" {
		return nil, fmt.Errorf("alert id is required")
	}
	source := strings.TrimSpace(alert.Source)
	if source == "" {
		return nil, fmt.Errorf("alert %s: source is required", alert.ID)
	}

	createdAtMS := alert.CreatedAt.UTC().UnixMilli()

	item := map[string]types.AttributeValue{
		attrPK:        &types.AttributeValueMemberS{Value: buildPK(source)},
		attrSK:        &types.AttributeValueMemberS{Value: buildSK(createdAtMS, alert.ID)},
		attrID:        &types.AttributeValueMemberS{Value: alert.ID},
		attrSeverity:  &types.AttributeValueMemberS{Value: alert.Severity.String()},
		attrTitle:     &types.AttributeValueMemberS{Value: alert.Title},
		attrMessage:   &types.AttributeValueMemberS{Value: alert.Message},
		attrSource:    &types.AttributeValueMemberS{Value: source},
		attrCreatedAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(createdAtMS, 10)},
	}

	if len(alert.Metadata) > 0 {
		raw, err := json.Marshal(alert.Metadata)
		if err != nil {
			return nil, fmt.Errorf("alert %s: marshal metadata: %w", alert.ID, err)
		}
		item[attrMetadata] = &types.AttributeValueMemberS{Value: string(raw)}
	}
	if alert.ResolvedAt != nil {
		resolvedAt := alert.ResolvedAt.UTC()
		item[attrResolvedAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(resolvedAt.UnixMilli(), 10)}
		if a.ttl > 0 {
			item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(resolvedAt.Add(a.ttl).Unix(), 10)}
		}
	}
	if note := strings.TrimSpace(alert.ResolutionNote); note != "" {
		item[attrResolutionNote] = &types.AttributeValueMemberS{Value: note}
	}

	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (entity.AlertSnapshot, error) {
	id, err := attrString(item, attrID)
	if err != nil {
		return entity.AlertSnapshot{}, err
	}
	source, err := attrString(item, attrSource)
	if err != nil {
		return entity.AlertSnapshot{}, err
	}
	rawSeverity, err := attrString(item, attrSeverity)
	if err != nil {
		return entity.AlertSnapshot{}, err
	}
	severity, err := valueobject.ParseSeverity(rawSeverity)
	if err != nil {
		return entity.AlertSnapshot{}, fmt.Errorf("invalid attribute %s: %w", attrSeverity, err)
	}
	createdAtMS, err := attrInt64(item, attrCreatedAt)
	if err != nil {
		return entity.AlertSnapshot{}, err
	}

	alert := entity.AlertSnapshot{
		ID:             id,
		Severity:       severity,
		Title:          optionalString(item, attrTitle),
		Message:        optionalString(item, attrMessage),
		Source:         source,
		CreatedAt:      time.UnixMilli(createdAtMS).UTC(),
		ResolutionNote: optionalString(item, attrResolutionNote),
	}

	if raw := optionalString(item, attrMetadata); raw != "" {
		if err := json.Unmarshal([]byte(raw), &alert.Metadata); err != nil {
			return entity.AlertSnapshot{}, fmt.Errorf("invalid attribute %s: %w", attrMetadata, err)
		}
	}
	if resolvedMS := optionalInt64(item, attrResolvedAt); resolvedMS > 0 {
		resolvedAt := time.UnixMilli(resolvedMS).UTC()
		alert.Resolved = true
		alert.ResolvedAt = &resolvedAt
	}

	return alert, nil
}

func buildPK(source string) string {
	return "SOURCE#" + source
}

func buildSK(createdAtMS int64, id string) string {
	return fmt.Sprintf("TS#%013d#ID#%s", createdAtMS, id)
}

func buildSortLowerBound(tsMS int64) string {
	return fmt.Sprintf("TS#%013d#", tsMS)
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	value, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return value.Value
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	value, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func boolPointer(v bool) *bool {
	return &v
}

func int32Pointer(v int32) *int32 {
	return &v
}
