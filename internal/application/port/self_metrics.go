package port

import "time"

// SelfMetrics - счетчики работы самого пайплайна (Prometheus и т.п.)
type SelfMetrics interface {
	SampleRecorded(kind string)
	SampleEvicted()
	SinkWriteFailed(sink string)
	SinkSamplesDropped(n int)
	AlertCreated(severity, source string)
	AlertResolved(reason string)
	NotificationSent(channel string)
	NotificationFailed(channel string)
	NotificationAggregated()
	CollectorRun(name string, duration time.Duration, err error)
}

// NopSelfMetrics используется, когда внешние метрики не подключены
type NopSelfMetrics struct{}

func (NopSelfMetrics) SampleRecorded(string) {}
func (NopSelfMetrics) SampleEvicted() {}
func (NopSelfMetrics) SinkWriteFailed(string) {}
func (NopSelfMetrics) SinkSamplesDropped(int) {}
func (NopSelfMetrics) AlertCreated(string, string) {}
func (NopSelfMetrics) AlertResolved(string) {}
func (NopSelfMetrics) NotificationSent(string) {}
func (NopSelfMetrics) NotificationFailed(string) {}
func (NopSelfMetrics) NotificationAggregated() {}
func (NopSelfMetrics) CollectorRun(string, time.Duration, error) {}
