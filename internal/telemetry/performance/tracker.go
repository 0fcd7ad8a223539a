// Package performance keeps a capped latency/outcome ledger per operation.
package performance

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/service"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/internal/telemetry/ring"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

const DefaultLedgerSize = 1000

// MetricPrefix prefixes the Timer sample emitted for every tracked operation.
const MetricPrefix = "performance."

// Recorder receives the Timer sample emitted on every Track call.
type Recorder interface {
	Record(sample entity.Sample)
}

// OperationStats summarises one operation's ledger within a window.
type OperationStats struct {
	Operation    string  `json:"operation"`
	TotalCount   int     `json:"total_count"`
	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	ErrorRate    float64 `json:"error_rate"`
	MeanDuration float64 `json:"mean_duration_ms"`
	MinDuration  float64 `json:"min_duration_ms"`
	MaxDuration  float64 `json:"max_duration_ms"`
	P95Duration  float64 `json:"p95_duration_ms"`
	P99Duration  float64 `json:"p99_duration_ms"`
}

type ledger struct {
	mu      sync.Mutex
	records *ring.Buffer[entity.PerformanceRecord]
}

// Tracker is safe for concurrent use. The ledger map has its own lock and
// each ledger is guarded separately, so tracking different operations does
// not contend.
type Tracker struct {
	mu       sync.RWMutex
	ledgers  map[string]*ledger
	capacity int

	recorder Recorder
	now      func() time.Time
	logger   *logger.Logger
}

// NewTracker builds a tracker. recorder may be nil when no Timer samples
// should be emitted.
func NewTracker(capacity int, recorder Recorder, now func() time.Time, log *logger.Logger) *Tracker {
	if capacity <= 0 {
		capacity = DefaultLedgerSize
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		ledgers:  make(map[string]*ledger),
		capacity: capacity,
		recorder: recorder,
		now:      now,
		logger:   log,
	}
}

// Track appends a record and emits Timer "performance.<operation>" tagged
// with {operation, success}.
func (t *Tracker) Track(operation string, durationMs float64, success bool, metadata map[string]interface{}) error {
	at := t.now()
	record := entity.NewPerformanceRecord(operation, durationMs, success, metadata, at)

	l := t.ledgerFor(operation)
	l.mu.Lock()
	l.records.Push(record)
	l.mu.Unlock()

	if t.recorder == nil {
		return nil
	}

	sample, err := entity.NewSample(MetricPrefix+operation, valueobject.Timer, durationMs, "ms", map[string]string{
		"operation": operation,
		"success":   strconv.FormatBool(success),
	}, at)
	if err != nil {
		t.logger.Warn("Performance sample rejected", "operation", operation, "error", err)
		return err
	}
	t.recorder.Record(sample)
	return nil
}

func (t *Tracker) ledgerFor(operation string) *ledger {
	t.mu.RLock()
	l, ok := t.ledgers[operation]
	t.mu.RUnlock()
	if ok {
		return l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok = t.ledgers[operation]; ok {
		return l
	}
	l = &ledger{records: ring.New[entity.PerformanceRecord](t.capacity)}
	t.ledgers[operation] = l
	return l
}

func (t *Tracker) lookup(operation string) (*ledger, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.ledgers[operation]
	return l, ok
}

// Operations returns tracked operation names, sorted.
func (t *Tracker) Operations() []string {
	t.mu.RLock()
	ops := make([]string, 0, len(t.ledgers))
	for op := range t.ledgers {
		ops = append(ops, op)
	}
	t.mu.RUnlock()
	sort.Strings(ops)
	return ops
}

// Recent returns the last n records of an operation, oldest first.
func (t *Tracker) Recent(operation string, n int) []entity.PerformanceRecord {
	l, ok := t.lookup(operation)
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records.Tail(n)
}

// Stats returns per-operation statistics within [now-window, now]. An empty
// operation selects every operation; a non-positive window disables the
// time bound. Operations without records in the window are omitted.
func (t *Tracker) Stats(operation string, window time.Duration) map[string]OperationStats {
	ops := t.Operations()
	if operation != "" {
		ops = []string{operation}
	}

	tr := valueobject.WindowEndingAt(t.now(), window)
	result := make(map[string]OperationStats, len(ops))
	for _, op := range ops {
		l, ok := t.lookup(op)
		if !ok {
			continue
		}

		l.mu.Lock()
		var records []entity.PerformanceRecord
		l.records.Each(func(r entity.PerformanceRecord) bool {
			if tr.Contains(r.Timestamp) {
				records = append(records, r)
			}
			return true
		})
		l.mu.Unlock()

		if len(records) == 0 {
			continue
		}
		result[op] = Compute(op, records)
	}
	return result
}

// Compute derives OperationStats from a slice of records. Percentiles use
// nearest-rank with a floor index.
func Compute(operation string, records []entity.PerformanceRecord) OperationStats {
	st := OperationStats{Operation: operation, TotalCount: len(records)}
	if len(records) == 0 {
		return st
	}

	durations := make([]float64, len(records))
	for i, r := range records {
		durations[i] = r.Duration
		if r.Success {
			st.SuccessCount++
		}
	}
	st.ErrorCount = st.TotalCount - st.SuccessCount
	st.ErrorRate = float64(st.ErrorCount) / float64(st.TotalCount) * 100

	sorted := service.Sorted(durations)
	st.MeanDuration = service.Mean(sorted)
	st.MinDuration = sorted[0]
	st.MaxDuration = sorted[len(sorted)-1]
	st.P95Duration = service.NearestRankPercentile(sorted, 95)
	st.P99Duration = service.NearestRankPercentile(sorted, 99)
	return st
}

// ErrorRate returns the error percentage over the last n records and how many
// records were considered.
func (t *Tracker) ErrorRate(operation string, n int) (rate float64, considered int) {
	recent := t.Recent(operation, n)
	if len(recent) == 0 {
		return 0, 0
	}
	failures := 0
	for _, r := range recent {
		if !r.Success {
			failures++
		}
	}
	return float64(failures) / float64(len(recent)) * 100, len(recent)
}

// Sweep drops records older than maxAge from every ledger.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := t.now().Add(-maxAge)

	t.mu.RLock()
	ledgers := make([]*ledger, 0, len(t.ledgers))
	for _, l := range t.ledgers {
		ledgers = append(ledgers, l)
	}
	t.mu.RUnlock()

	removed := 0
	for _, l := range ledgers {
		l.mu.Lock()
		removed += l.records.Retain(func(r entity.PerformanceRecord) bool {
			return !r.Timestamp.Before(cutoff)
		})
		l.mu.Unlock()
	}
	return removed
}
