package valueobject

import (
	"errors"
	"time"
)

// TimeRange представляет временной диапазон (Value Object)
// Иммутабельный объект
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange создает новый TimeRange с валидацией
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.After(end) {
		return TimeRange{}, errors.New("start time must be before end time")
	}

	if start.IsZero() || end.IsZero() {
		return TimeRange{}, errors.New("start and end times cannot be zero")
	}

	return TimeRange{
		start: start,
		end:   end,
	}, nil
}

// WindowEndingAt возвращает окно [now-window, now].
// Неположительное окно означает отсутствие нижней границы.
func WindowEndingAt(now time.Time, window time.Duration) TimeRange {
	if window <= 0 {
		return TimeRange{end: now}
	}
	return TimeRange{start: now.Add(-window), end: now}
}

// Start возвращает начальное время
func (tr TimeRange) Start() time.Time {
	return tr.start
}

// End возвращает конечное время
func (tr TimeRange) End() time.Time {
	return tr.end
}

// Unbounded сообщает, что у диапазона нет нижней границы
func (tr TimeRange) Unbounded() bool {
	return tr.start.IsZero()
}

// Duration возвращает длительность диапазона
func (tr TimeRange) Duration() time.Duration {
	if tr.Unbounded() {
		return 0
	}
	return tr.end.Sub(tr.start)
}

// Contains проверяет, попадает ли указанное время в диапазон
func (tr TimeRange) Contains(t time.Time) bool {
	if !tr.Unbounded() && t.Before(tr.start) {
		return false
	}
	return !t.After(tr.end)
}

// Overlaps проверяет, пересекаются ли два временных диапазона
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.start.Before(other.end) && other.start.Before(tr.end)
}
