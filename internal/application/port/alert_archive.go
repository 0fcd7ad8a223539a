package port

import (
	"context"
	"time"

	"github.com/dreschagin/telemetry-pipeline/internal/domain/entity"
)

// AlertArchive хранит закрытые алерты после удаления из памяти (Port)
type AlertArchive interface {
	// PutBatch сохраняет пачку закрытых алертов
	PutBatch(ctx context.Context, alerts []entity.AlertSnapshot) error

	// ListBySource возвращает архивные алерты источника, новые первыми
	ListBySource(ctx context.Context, source string, since time.Time, limit int) ([]entity.AlertSnapshot, error)
}
