package valueobject

import (
	"errors"
	"strings"
	"time"
)

// Interval представляет ширину бакета агрегации (Value Object)
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval6h  Interval = "6h"
	Interval1d  Interval = "1d"
)

var ErrInvalidInterval = errors.New("invalid aggregation interval")

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval6h:  6 * time.Hour,
	Interval1d:  24 * time.Hour,
}

func ParseInterval(raw string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := intervalDurations[iv]; !ok {
		return "", ErrInvalidInterval
	}
	return iv, nil
}

// Duration возвращает ширину бакета; для неизвестного интервала 1m
func (iv Interval) Duration() time.Duration {
	if d, ok := intervalDurations[iv]; ok {
		return d
	}
	return time.Minute
}

func (iv Interval) String() string {
	return string(iv)
}
