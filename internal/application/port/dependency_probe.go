package port

import "context"

// DependencyProbe - внешняя зависимость, доступность которой мониторится
type DependencyProbe interface {
	Name() string
	Ping(ctx context.Context) error
}

// ProbeFunc адаптирует функцию к DependencyProbe
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p ProbeFunc) Name() string { return p.ProbeName }

func (p ProbeFunc) Ping(ctx context.Context) error { return p.Fn(ctx) }
