package entity

import (
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/valueobject"
	"github.com/google/uuid"
)

// Alert представляет алерт (Aggregate Root)
// Жизненный цикл: Open -> Resolved. Resolved терминален.
// Синхронизацию обеспечивает владелец (Alert Engine).
type Alert struct {
	id             string
	severity       valueobject.Severity
	title          string
	message        string
	source         string
	createdAt      time.Time
	metadata       map[string]interface{}
	resolved       bool
	resolvedAt     time.Time
	resolutionNote string
}

// AlertSnapshot - копия состояния алерта на момент вызова
type AlertSnapshot struct {
	ID             string                 `json:"id"`
	Severity       valueobject.Severity   `json:"severity"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Source         string                 `json:"source"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Resolved       bool                   `json:"resolved"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	ResolutionNote string                 `json:"resolution_note,omitempty"`
}

// NewAlert создает новый открытый алерт (Factory Method).
// Идентификатор - UUIDv7, упорядоченный по времени.
func NewAlert(
	severity valueobject.Severity,
	title, message, source string,
	metadata map[string]interface{},
	createdAt time.Time,
) (*Alert, error) {
	if err := severity.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return &Alert{
		id:        id.String(),
		severity:  severity,
		title:     title,
		message:   message,
		source:    source,
		createdAt: createdAt.UTC(),
		metadata:  copyMetadata(metadata),
	}, nil
}

// ReconstructAlert восстанавливает алерт из архива
func ReconstructAlert(s AlertSnapshot) *Alert {
	a := &Alert{
		id:             s.ID,
		severity:       s.Severity,
		title:          s.Title,
		message:        s.Message,
		source:         s.Source,
		createdAt:      s.CreatedAt,
		metadata:       copyMetadata(s.Metadata),
		resolved:       s.Resolved,
		resolutionNote: s.ResolutionNote,
	}
	if s.ResolvedAt != nil {
		a.resolvedAt = *s.ResolvedAt
	}
	return a
}

func (a *Alert) ID() string { return a.id }
func (a *Alert) Severity() valueobject.Severity { return a.severity }
func (a *Alert) Title() string { return a.title }
func (a *Alert) Message() string { return a.message }
func (a *Alert) Source() string { return a.source }
func (a *Alert) CreatedAt() time.Time { return a.createdAt }
func (a *Alert) IsResolved() bool { return a.resolved }
func (a *Alert) ResolvedAt() time.Time { return a.resolvedAt }

// MetadataValue возвращает одно значение метаданных
func (a *Alert) MetadataValue(key string) (interface{}, bool) {
	v, ok := a.metadata[key]
	return v, ok
}

// Resolve переводит алерт в Resolved.
// Повторный вызов ничего не меняет и возвращает false: resolved_at фиксируется навсегда.
func (a *Alert) Resolve(note string, at time.Time) bool {
	if a.resolved {
		return false
	}
	a.resolved = true
	a.resolvedAt = at.UTC()
	a.resolutionNote = note
	return true
}

// Age возвращает возраст алерта относительно now
func (a *Alert) Age(now time.Time) time.Duration {
	return now.Sub(a.createdAt)
}

// Snapshot возвращает копию текущего состояния
func (a *Alert) Snapshot() AlertSnapshot {
	s := AlertSnapshot{
		ID:             a.id,
		Severity:       a.severity,
		Title:          a.title,
		Message:        a.message,
		Source:         a.source,
		CreatedAt:      a.createdAt,
		Metadata:       copyMetadata(a.metadata),
		Resolved:       a.resolved,
		ResolutionNote: a.resolutionNote,
	}
	if a.resolved {
		at := a.resolvedAt
		s.ResolvedAt = &at
	}
	return s
}

func copyMetadata(md map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}
