package logger

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []port.LogEntry
}

func (p *recordingPublisher) Publish(_ context.Context, entry port.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, entries []port.LogEntry) error {
	for _, e := range entries {
		_ = p.Publish(ctx, e)
	}
	return nil
}

func (p *recordingPublisher) Flush(context.Context) error { return nil }

func newBufferedLogger(level string) (*Logger, *bytes.Buffer) {
	l := New(level)
	buf := &bytes.Buffer{}
	l.logger = log.New(buf, "", 0)
	return l, buf
}

func TestLoggerLevels(t *testing.T) {
	l, buf := newBufferedLogger("warn")

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message", "key", "value")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn message | key=value") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoggerWithAndPublisher(t *testing.T) {
	l, buf := newBufferedLogger("info")
	pub := &recordingPublisher{}
	l.SetLogPublisher(pub)

	child := l.With("component", "store")
	child.Error("sink write failed", context.DeadlineExceeded, "batch", 3)

	if !strings.Contains(buf.String(), "component=store batch=3 error=context deadline exceeded") {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.entries) != 1 {
		t.Fatalf("expected 1 published entry, got %d", len(pub.entries))
	}
	entry := pub.entries[0]
	if entry.Level != port.LogLevelError {
		t.Errorf("expected ERROR level, got %s", entry.Level)
	}
	if entry.Fields["component"] != "store" || entry.Fields["batch"] != 3 {
		t.Errorf("unexpected fields: %v", entry.Fields)
	}
}
