package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/application/dto"
	"github.com/dreschagin/telemetry-pipeline/internal/application/port"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/dreschagin/telemetry-pipeline/pkg/logger"
)

// DatabaseHealthMetric - время ответа основного хранилища, на него смотрит правило по умолчанию
const DatabaseHealthMetric = "database.health_check.response_time"

const defaultProbeTimeout = 5 * time.Second

// CheckDependencyHealthConfig настраивает проверку зависимостей
type CheckDependencyHealthConfig struct {
	// DatabaseProbe - имя probe, чье время ответа пишется в DatabaseHealthMetric
	DatabaseProbe string
	Timeout       time.Duration
}

// CheckDependencyHealthUseCase пингует зависимости и пишет метрики доступности
type CheckDependencyHealthUseCase struct {
	probes   []port.DependencyProbe
	recorder SampleRecorder
	cfg      CheckDependencyHealthConfig
	now      func() time.Time
	logger   *logger.Logger
}

// NewCheckDependencyHealthUseCase создает новый use case
func NewCheckDependencyHealthUseCase(
	probes []port.DependencyProbe,
	recorder SampleRecorder,
	cfg CheckDependencyHealthConfig,
	logger *logger.Logger,
) *CheckDependencyHealthUseCase {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	return &CheckDependencyHealthUseCase{
		probes:   probes,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// Run - адаптер под collection.Func
func (uc *CheckDependencyHealthUseCase) Run(ctx context.Context) error {
	uc.Execute(ctx)
	return nil
}

// Execute пингует все зависимости параллельно и возвращает статусы, отсортированные по имени
func (uc *CheckDependencyHealthUseCase) Execute(ctx context.Context) []dto.DependencyStatusDTO {
	statuses := make([]dto.DependencyStatusDTO, len(uc.probes))

	var wg sync.WaitGroup
	for i, probe := range uc.probes {
		wg.Add(1)
		go func(i int, probe port.DependencyProbe) {
			defer wg.Done()
			statuses[i] = uc.check(ctx, probe)
		}(i, probe)
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

	for _, st := range statuses {
		uc.record(st)
	}
	return statuses
}

func (uc *CheckDependencyHealthUseCase) check(ctx context.Context, probe port.DependencyProbe) dto.DependencyStatusDTO {
	pingCtx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := probe.Ping(pingCtx)
	st := dto.DependencyStatusDTO{
		Name:           probe.Name(),
		Up:             err == nil,
		ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000,
		CheckedAt:      uc.now(),
	}
	if err != nil {
		st.Error = err.Error()
		uc.logger.Warn("Dependency check failed", "dependency", st.Name, "error", err)
	}
	return st
}

func (uc *CheckDependencyHealthUseCase) record(st dto.DependencyStatusDTO) {
	tags := map[string]string{"dependency": st.Name}
	prefix := "dependency." + metricSegment(st.Name)

	up := 0.0
	if st.Up {
		up = 1
	}
	uc.emit(prefix+".up", valueobject.Gauge, up, "", tags, st.CheckedAt)
	uc.emit(prefix+".response_time", valueobject.Timer, st.ResponseTimeMs, "ms", tags, st.CheckedAt)
	if st.Name == uc.cfg.DatabaseProbe {
		uc.emit(DatabaseHealthMetric, valueobject.Timer, st.ResponseTimeMs, "ms", tags, st.CheckedAt)
	}
}

func (uc *CheckDependencyHealthUseCase) emit(name string, kind valueobject.MetricKind, value float64, unit string, tags map[string]string, at time.Time) {
	sample, err := entity.NewSample(name, kind, value, unit, tags, at)
	if err != nil {
		uc.logger.Warn("Dependency sample rejected", "name", name, "error", err)
		return
	}
	uc.recorder.RecordSample(sample)
}

// metricSegment приводит имя к виду, допустимому внутри имени метрики
func metricSegment(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', ':', '/':
			return '_'
		}
		return r
	}, strings.ToLower(name))
}
