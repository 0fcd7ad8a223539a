package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	s, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	go s.Start()
	if !s.ReadyForConnections(4 * time.Second) {
		s.Shutdown()
		t.Fatal("nats server failed to start")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func subscribe(t *testing.T, url, subject string) *nats.Subscription {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		t.Fatalf("SubscribeSync() error = %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	return sub
}

func TestPublishEvent(t *testing.T) {
	s := runServer(t)
	sub := subscribe(t, s.ClientURL(), "alerts.notifications")

	p, err := NewNATSPublisher(Config{URL: s.ClientURL()}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	defer p.Close()

	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	event := map[string]string{"alert_id": "a-1", "severity": "high"}
	if err := p.PublishEvent(context.Background(), "alerts.notifications", event); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg() error = %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if got["alert_id"] != "a-1" || got["severity"] != "high" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestPublishEventCancelledContext(t *testing.T) {
	s := runServer(t)
	p, err := NewNATSPublisher(Config{URL: s.ClientURL()}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PublishEvent(ctx, "x", "y"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestPingAppliesDefaultDeadline(t *testing.T) {
	s := runServer(t)
	p, err := NewNATSPublisher(Config{URL: s.ClientURL()}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	defer p.Close()

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{"no deadline", func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) }},
		{"caller deadline", func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), time.Second)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				t.Fatalf("Ping() error = %v", err)
			}
		})
	}
}

func TestPingAfterClose(t *testing.T) {
	s := runServer(t)
	p, err := NewNATSPublisher(Config{URL: s.ClientURL()}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Ping(context.Background()) == nil {
		if time.Now().After(deadline) {
			t.Fatal("expected ping to fail after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSampleMirror(t *testing.T) {
	s := runServer(t)
	sub := subscribe(t, s.ClientURL(), "telemetry.samples")

	p, err := NewNATSPublisher(Config{URL: s.ClientURL()}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	defer p.Close()

	mirror, err := NewSampleMirror(p, "telemetry.samples")
	if err != nil {
		t.Fatalf("NewSampleMirror() error = %v", err)
	}
	if mirror.Name() != "nats" {
		t.Errorf("unexpected name %q", mirror.Name())
	}

	sample, err := entity.NewSample("app.goroutines", valueobject.Gauge, 12, "count", map[string]string{"host": "a"}, time.Now())
	if err != nil {
		t.Fatalf("NewSample() error = %v", err)
	}
	if err := mirror.WriteBatch(context.Background(), []entity.Sample{sample}); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if err := mirror.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty WriteBatch() error = %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg() error = %v", err)
	}
	var batch SampleBatch
	if err := json.Unmarshal(msg.Data, &batch); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if len(batch.Samples) != 1 || batch.Samples[0].Name != "app.goroutines" || batch.Samples[0].Tags["host"] != "a" {
		t.Errorf("unexpected batch %+v", batch)
	}
	if _, err := sub.NextMsg(100 * time.Millisecond); err == nil {
		t.Error("empty batch must not be published")
	}

	if err := mirror.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNewSampleMirrorValidation(t *testing.T) {
	if _, err := NewSampleMirror(nil, "s"); err == nil {
		t.Error("expected error for nil publisher")
	}
	if _, err := NewSampleMirror(&NATSPublisher{}, ""); err == nil {
		t.Error("expected error for empty subject")
	}
}
