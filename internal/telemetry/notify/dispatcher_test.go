package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

type recordingChannel struct {
	kind entity.ChannelKind
	err  error

	mu     sync.Mutex
	alerts []*dto.AlertDTO
}

func (c *recordingChannel) Kind() entity.ChannelKind { return c.kind }

func (c *recordingChannel) Send(_ context.Context, a *dto.AlertDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func dashboardConfig() entity.ChannelConfig {
	return entity.NewChannelConfig(entity.ChannelDashboard, true, nil)
}

func newAlert(id, source, severity string) *dto.AlertDTO {
	return &dto.AlertDTO{ID: id, Source: source, Severity: severity, Title: "t", Timestamp: time.Now()}
}

func TestRegisterValidatesConfig(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1}, nil, logger.New("error"))
	defer d.Close(time.Second)

	tests := []struct {
		name string
		ch   Channel
		cfg  entity.ChannelConfig
	}{
		{"missing webhook url", &recordingChannel{kind: entity.ChannelWebhook}, entity.NewChannelConfig(entity.ChannelWebhook, true, nil)},
		{"unknown kind", &recordingChannel{kind: "pager"}, entity.NewChannelConfig("pager", true, nil)},
		{"kind mismatch", &recordingChannel{kind: entity.ChannelSlack}, dashboardConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.Register("bad", tt.ch, tt.cfg); !errors.Is(err, entity.ErrInvalidChannelConfig) {
				t.Fatalf("expected ErrInvalidChannelConfig, got %v", err)
			}
		})
	}

	ok := &recordingChannel{kind: entity.ChannelDashboard}
	if err := d.Register("dashboard", ok, dashboardConfig()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if names := d.Channels(); len(names) != 1 || names[0] != "dashboard" {
		t.Fatalf("unexpected channels %v", names)
	}
}

func TestDispatchDeliversToEnabledChannels(t *testing.T) {
	d := NewDispatcher(Config{Workers: 2}, nil, logger.New("error"))

	enabled := &recordingChannel{kind: entity.ChannelDashboard}
	disabled := &recordingChannel{kind: entity.ChannelDashboard}
	failing := &recordingChannel{kind: entity.ChannelDashboard, err: errors.New("down")}
	_ = d.Register("enabled", enabled, dashboardConfig())
	_ = d.Register("disabled", disabled, entity.NewChannelConfig(entity.ChannelDashboard, false, nil))
	_ = d.Register("failing", failing, dashboardConfig())

	if !d.Dispatch(newAlert("a1", "manual", "high")) {
		t.Fatal("expected alert to be queued")
	}
	if !d.Close(time.Second) {
		t.Fatal("expected dispatcher to drain")
	}

	if enabled.count() != 1 || failing.count() != 1 || disabled.count() != 0 {
		t.Fatalf("deliveries enabled=%d failing=%d disabled=%d", enabled.count(), failing.count(), disabled.count())
	}
	st := d.Stats()
	if st.Sent != 1 || st.Failed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Channels["failing"].LastError != "down" {
		t.Errorf("expected last error recorded, got %q", st.Channels["failing"].LastError)
	}
}

func TestDispatchAggregation(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := now
	d := NewDispatcher(Config{
		Workers:           1,
		AggregationMax:    2,
		AggregationWindow: 15 * time.Minute,
		Now:               func() time.Time { return current },
	}, nil, logger.New("error"))
	defer d.Close(time.Second)

	results := []bool{
		d.Dispatch(newAlert("1", "threshold_monitor", "high")),
		d.Dispatch(newAlert("2", "threshold_monitor", "high")),
		d.Dispatch(newAlert("3", "threshold_monitor", "high")),
		d.Dispatch(newAlert("4", "threshold_monitor", "low")),
	}
	want := []bool{true, true, false, true}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("dispatch #%d = %v, want %v", i+1, results[i], want[i])
		}
	}

	current = now.Add(16 * time.Minute)
	if !d.Dispatch(newAlert("5", "threshold_monitor", "high")) {
		t.Fatal("group must reopen after the window")
	}

	if st := d.Stats(); st.Aggregated != 1 {
		t.Fatalf("expected 1 aggregated alert, got %d", st.Aggregated)
	}
	history := d.History(0)
	if len(history) != 5 || history[0].Alert.ID != "5" {
		t.Fatalf("expected 5 history entries newest first, got %d", len(history))
	}
	if !history[2].Aggregated {
		t.Fatal("expected third alert marked as aggregated")
	}
}

type blockingChannel struct {
	release chan struct{}
}

func (c *blockingChannel) Kind() entity.ChannelKind { return entity.ChannelDashboard }

func (c *blockingChannel) Send(ctx context.Context, _ *dto.AlertDTO) error {
	select {
	case <-c.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSlowChannelDoesNotDelayOthers(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1, Timeout: 5 * time.Second}, nil, logger.New("error"))

	slow := &blockingChannel{release: make(chan struct{})}
	fast := &recordingChannel{kind: entity.ChannelDashboard}
	_ = d.Register("slow", slow, dashboardConfig())
	_ = d.Register("fast", fast, dashboardConfig())

	d.Dispatch(newAlert("a1", "manual", "high"))

	deadline := time.Now().Add(time.Second)
	for fast.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("fast channel waited on the slow one")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(slow.release)
	if !d.Close(time.Second) {
		t.Fatal("expected dispatcher to drain")
	}
	if st := d.Stats(); st.Sent != 2 {
		t.Fatalf("expected 2 deliveries, got %+v", st)
	}
}

func TestPruneGroupsDropsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := now
	d := NewDispatcher(Config{
		Workers:           1,
		AggregationWindow: 15 * time.Minute,
		AggregationKey:    []string{"title"},
		Now:               func() time.Time { return current },
	}, nil, logger.New("error"))
	defer d.Close(time.Second)

	for _, title := range []string{"disk a", "disk b", "disk c"} {
		a := newAlert(title, "manual", "low")
		a.Title = title
		d.Dispatch(a)
	}
	if st := d.Stats(); st.Groups != 3 {
		t.Fatalf("expected 3 groups, got %d", st.Groups)
	}

	current = now.Add(10 * time.Minute)
	recent := newAlert("disk d", "manual", "low")
	recent.Title = "disk d"
	d.Dispatch(recent)

	if pruned := d.PruneGroups(now.Add(20 * time.Minute)); pruned != 3 {
		t.Fatalf("expected 3 idle groups pruned, got %d", pruned)
	}
	if st := d.Stats(); st.Groups != 1 {
		t.Fatalf("expected only the recent group to remain, got %d", st.Groups)
	}
}

func TestHistoryIsCapped(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1, HistorySize: 3, AggregationMax: 100}, nil, logger.New("error"))
	defer d.Close(time.Second)

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		d.Dispatch(newAlert(id, "s", "low"))
	}
	if h := d.History(10); len(h) != 3 || h[2].Alert.ID != "3" {
		t.Fatalf("expected last 3 alerts, got %d", len(h))
	}
}

func TestTestChannel(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1}, nil, logger.New("error"))
	defer d.Close(time.Second)

	ch := &recordingChannel{kind: entity.ChannelDashboard}
	_ = d.Register("dashboard", ch, dashboardConfig())

	if err := d.TestChannel(context.Background(), "dashboard"); err != nil {
		t.Fatalf("TestChannel() error = %v", err)
	}
	if ch.count() != 1 || ch.alerts[0].Severity != "low" {
		t.Fatalf("expected one synthetic low alert, got %d", ch.count())
	}
	if err := d.TestChannel(context.Background(), "missing"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(Config{Workers: 1}, nil, logger.New("error"))
	d.Close(time.Second)
	d.Close(time.Second)

	if d.Dispatch(newAlert("x", "s", "low")) {
		t.Fatal("closed dispatcher must not queue alerts")
	}
	if st := d.Stats(); st.Dropped != 1 {
		t.Fatalf("expected dropped counter 1, got %d", st.Dropped)
	}
}
