// Пакет repository — слой персистентности сессий, решений и привязок
// директорий. Два взаимозаменяемых бэкенда: встроенная БД badger
// (по умолчанию, локальный файл) и PostgreSQL (по FS_DB_DSN).
//
// Слой не решает политику деградации: ошибки возвращаются как есть,
// «никогда не фатально» обеспечивает обёртка в сервисном слое.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/gofotosort/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
)

// ProgressFunc — колбэк прогресса миграции решений при relink:
// count — количество перенесённых записей, total — всего записей.
type ProgressFunc func(count, total int)

// Gateway — интерфейс персистентности fotosort.
// Сохранение решений работает как upsert: не более одной записи
// на пару (directory_name, relative_path).
type Gateway interface {
	// GetSession возвращает сессию по имени директории или ErrNotFound.
	GetSession(ctx context.Context, directoryName string) (*model.Session, error)
	// SaveSession сохраняет сессию (upsert по directory_name).
	SaveSession(ctx context.Context, session *model.Session) error
	// GetAllSessions возвращает все сохранённые сессии.
	GetAllSessions(ctx context.Context) ([]*model.Session, error)

	// GetDecisionsForDirectory возвращает карту relative_path → решение.
	GetDecisionsForDirectory(ctx context.Context, directoryName string) (map[string]model.Decision, error)
	// SaveDecision сохраняет решение (upsert по ключу записи).
	SaveDecision(ctx context.Context, rec model.DecisionRecord) error

	// RelinkSession переносит сессию и все решения со старого имени
	// директории на новое. Последовательность: сначала сессия, затем
	// решения по одному с вызовом onProgress после каждого.
	RelinkSession(ctx context.Context, oldName, newName string, onProgress ProgressFunc) error

	// StoreHandle сохраняет привязку директории (upsert).
	StoreHandle(ctx context.Context, directoryName string, handle model.DirHandle) error
	// GetHandle возвращает привязку или ErrNotFound.
	GetHandle(ctx context.Context, directoryName string) (*model.DirHandle, error)
	// DeleteHandle удаляет привязку. Отсутствие записи — не ошибка.
	DeleteHandle(ctx context.Context, directoryName string) error

	// Ping проверяет доступность хранилища (для readiness probe).
	Ping(ctx context.Context) error
	// Close освобождает ресурсы хранилища.
	Close() error
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать одни и те же запросы внутри и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
