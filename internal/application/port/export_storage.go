package port

import "context"

// ExportStorage определяет интерфейс для хранения выгрузок (CSV/JSON)
type ExportStorage interface {
	// PutObject загружает объект и возвращает URL для чтения.
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
}
