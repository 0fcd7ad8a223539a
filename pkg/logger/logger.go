package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
)

type Logger struct {
	logger    *log.Logger
	level     Level
	fields    []interface{}
	publisher *atomic.Pointer[publisherHolder]
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

type publisherHolder struct {
	publisher port.LogPublisher
}

func New(level string) *Logger {
	l := &Logger{
		logger:    log.New(os.Stdout, "", 0),
		level:     parseLevel(level),
		publisher: &atomic.Pointer[publisherHolder]{},
	}
	return l
}

func parseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetLogPublisher mirrors every emitted entry to an external log system.
// Passing nil detaches the current publisher.
func (l *Logger) SetLogPublisher(p port.LogPublisher) {
	if p == nil {
		l.publisher.Store(nil)
		return
	}
	l.publisher.Store(&publisherHolder{publisher: p})
}

// With returns a child logger that appends the given key/value pairs to
// every entry. The child shares the parent's publisher.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &Logger{
		logger:    l.logger,
		level:     l.level,
		fields:    fields,
		publisher: l.publisher,
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log(port.LogLevelDebug, msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= INFO {
		l.log(port.LogLevelInfo, msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WARN {
		l.log(port.LogLevelWarn, msg, args...)
	}
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if l.level <= ERROR {
		if err != nil {
			args = append(args, "error", err.Error())
		}
		l.log(port.LogLevelError, msg, args...)
	}
}

func (l *Logger) log(level port.LogLevel, msg string, args ...interface{}) {
	now := time.Now()
	if len(l.fields) > 0 {
		args = append(append([]interface{}{}, l.fields...), args...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", now.Format("2006-01-02 15:04:05"), level, msg)

	if len(args) > 0 {
		b.WriteString(" |")
		for i := 0; i+1 < len(args); i += 2 {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		}
	}

	l.logger.Println(b.String())

	if holder := l.publisher.Load(); holder != nil {
		entry := port.LogEntry{
			Timestamp: now.UTC(),
			Level:     level,
			Message:   msg,
			Fields:    toFields(args),
		}
		// Publisher buffers internally; errors here must not recurse into the logger.
		_ = holder.publisher.Publish(context.Background(), entry)
	}
}

func toFields(args []interface{}) map[string]interface{} {
	if len(args) < 2 {
		return nil
	}
	fields := make(map[string]interface{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return fields
}
