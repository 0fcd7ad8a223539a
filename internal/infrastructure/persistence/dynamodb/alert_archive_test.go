package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
)

// fakeTable keeps items per partition and answers queries by sort key.
type fakeTable struct {
	mu          sync.Mutex
	items       map[string]map[string]map[string]types.AttributeValue
	batches     int
	unprocessed int
	pageSize    int
	describeErr error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func (f *fakeTable) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		for i, req := range reqs {
			if f.unprocessed > 0 && i == 0 {
				f.unprocessed--
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
				continue
			}
			item := req.PutRequest.Item
			pk := item[attrPK].(*types.AttributeValueMemberS).Value
			sk := item[attrSK].(*types.AttributeValueMemberS).Value
			if f.items[pk] == nil {
				f.items[pk] = make(map[string]map[string]types.AttributeValue)
			}
			f.items[pk][sk] = item
		}
	}
	if len(out.UnprocessedItems) == 0 {
		out.UnprocessedItems = nil
	}
	return out, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	from := in.ExpressionAttributeValues[":from"].(*types.AttributeValueMemberS).Value

	keys := make([]string, 0)
	for sk := range f.items[pk] {
		if sk >= from {
			keys = append(keys, sk)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	if start, ok := in.ExclusiveStartKey[attrSK].(*types.AttributeValueMemberS); ok {
		idx := sort.Search(len(keys), func(i int) bool { return keys[i] < start.Value })
		keys = keys[idx:]
	}

	limit := int(*in.Limit)
	if f.pageSize > 0 && f.pageSize < limit {
		limit = f.pageSize
	}
	out := &dynamodb.QueryOutput{}
	for i, sk := range keys {
		if i == limit {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				attrPK: &types.AttributeValueMemberS{Value: pk},
				attrSK: &types.AttributeValueMemberS{Value: keys[i-1]},
			}
			break
		}
		out.Items = append(out.Items, f.items[pk][sk])
	}
	return out, nil
}

func (f *fakeTable) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.describeErr
}

func resolvedSnapshot(id, source string, createdAt time.Time) entity.AlertSnapshot {
	resolvedAt := createdAt.Add(time.Minute)
	return entity.AlertSnapshot{
		ID:             id,
		Severity:       valueobject.SeverityHigh,
		Title:          "Threshold Alert: system.cpu.usage_percent",
		Message:        "CPU - Current: 95, Threshold: >= 80",
		Source:         source,
		CreatedAt:      createdAt,
		Metadata:       map[string]interface{}{"rule_id": "threshold_system.cpu.usage_percent_>=_80"},
		Resolved:       true,
		ResolvedAt:     &resolvedAt,
		ResolutionNote: "auto-resolved",
	}
}

func TestPutBatchAndListBySource(t *testing.T) {
	table := newFakeTable()
	archive := newAlertArchive(table, Config{TableName: "alerts", TTL: 24 * time.Hour})

	base := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	alerts := make([]entity.AlertSnapshot, 0, 30)
	for i := 0; i < 30; i++ {
		alerts = append(alerts, resolvedSnapshot(fmt.Sprintf("id-%02d", i), "threshold_monitor", base.Add(time.Duration(i)*time.Minute)))
	}
	alerts = append(alerts, resolvedSnapshot("other", "manual", base))

	if err := archive.PutBatch(context.Background(), alerts); err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}
	if table.batches != 2 {
		t.Errorf("expected 2 batch writes of at most %d, got %d", maxBatchWriteSize, table.batches)
	}

	got, err := archive.ListBySource(context.Background(), "threshold_monitor", base.Add(20*time.Minute), 5)
	if err != nil {
		t.Fatalf("ListBySource() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 alerts, got %d", len(got))
	}
	if got[0].ID != "id-29" || got[4].ID != "id-25" {
		t.Errorf("expected newest first, got %s..%s", got[0].ID, got[4].ID)
	}

	first := got[0]
	if !first.Resolved || first.ResolvedAt == nil || first.ResolutionNote != "auto-resolved" {
		t.Errorf("resolution not restored: %+v", first)
	}
	if first.Severity != valueobject.SeverityHigh || first.Metadata["rule_id"] == nil {
		t.Errorf("fields not restored: %+v", first)
	}
	if !first.CreatedAt.Equal(base.Add(29 * time.Minute)) {
		t.Errorf("unexpected created_at %v", first.CreatedAt)
	}

	item := table.items["SOURCE#threshold_monitor"][buildSK(base.UnixMilli(), "id-00")]
	if _, ok := item[attrExpiresAt]; !ok {
		t.Error("expected expires_at when TTL is set")
	}
}

func TestListBySourcePaginates(t *testing.T) {
	table := newFakeTable()
	table.pageSize = 2
	archive := newAlertArchive(table, Config{TableName: "alerts"})

	base := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)
	var alerts []entity.AlertSnapshot
	for i := 0; i < 7; i++ {
		alerts = append(alerts, resolvedSnapshot(fmt.Sprintf("id-%d", i), "manual", base.Add(time.Duration(i)*time.Second)))
	}
	if err := archive.PutBatch(context.Background(), alerts); err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}

	got, err := archive.ListBySource(context.Background(), "manual", time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListBySource() error = %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("expected all 7 alerts across pages, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Fatalf("alerts not ordered newest first at %d", i)
		}
	}
}

func TestPutBatchRetriesUnprocessed(t *testing.T) {
	table := newFakeTable()
	table.unprocessed = 2
	archive := newAlertArchive(table, Config{TableName: "alerts"})
	archive.retryWait = time.Millisecond

	err := archive.PutBatch(context.Background(), []entity.AlertSnapshot{
		resolvedSnapshot("a", "manual", time.Now()),
		resolvedSnapshot("b", "manual", time.Now()),
	})
	if err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}
	if table.batches != 3 {
		t.Errorf("expected 3 attempts, got %d", table.batches)
	}
	if len(table.items["SOURCE#manual"]) != 2 {
		t.Errorf("expected both items stored, got %d", len(table.items["SOURCE#manual"]))
	}
}

func TestPutBatchValidation(t *testing.T) {
	archive := newAlertArchive(newFakeTable(), Config{TableName: "alerts"})

	tests := []struct {
		name  string
		alert entity.AlertSnapshot
		want  string
	}{
		{"missing id", entity.AlertSnapshot{Source: "manual"}, "id is required"},
		{"missing source", entity.AlertSnapshot{ID: "x"}, "source is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := archive.PutBatch(context.Background(), []entity.AlertSnapshot{tt.alert})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("PutBatch() error = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := archive.ListBySource(context.Background(), " ", time.Time{}, 10); err == nil {
		t.Error("expected error for empty source")
	}
}

func TestFromItemRejectsBadSeverity(t *testing.T) {
	item := map[string]types.AttributeValue{
		attrID:        &types.AttributeValueMemberS{Value: "x"},
		attrSource:    &types.AttributeValueMemberS{Value: "manual"},
		attrSeverity:  &types.AttributeValueMemberS{Value: "urgent"},
		attrCreatedAt: &types.AttributeValueMemberN{Value: "0"},
	}
	if _, err := fromItem(item); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestAlertArchivePing(t *testing.T) {
	table := newFakeTable()
	archive := newAlertArchive(table, Config{TableName: "alerts"})
	if err := archive.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	table.describeErr = errors.New("not found")
	if err := archive.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}
