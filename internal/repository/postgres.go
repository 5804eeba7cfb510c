package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/gofotosort/internal/domain/model"
)

// sessionColumns — список столбцов таблицы sessions для SELECT-запросов.
const sessionColumns = `directory_name, last_index, total_images, updated_at, is_done`

// PostgresGateway — реализация Gateway на PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
type PostgresGateway struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresGateway создаёт шлюз на готовом пуле соединений.
func NewPostgresGateway(pool *pgxpool.Pool, logger *slog.Logger) *PostgresGateway {
	return &PostgresGateway{
		pool:   pool,
		logger: logger.With(slog.String("component", "postgres-gateway")),
	}
}

// Close закрывает пул соединений.
func (g *PostgresGateway) Close() error {
	g.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// GetSession возвращает сессию по имени директории или ErrNotFound.
func (g *PostgresGateway) GetSession(ctx context.Context, directoryName string) (*model.Session, error) {
	return getSession(ctx, g.pool, directoryName)
}

// getSession — общая реализация для пула и транзакции.
func getSession(ctx context.Context, db DBTX, directoryName string) (*model.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE directory_name = $1`, sessionColumns)

	s := &model.Session{}
	err := db.QueryRow(ctx, query, directoryName).Scan(
		&s.DirectoryName, &s.LastIndex, &s.TotalImages, &s.UpdatedAt, &s.IsDone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сессии: %w", err)
	}
	return s, nil
}

// SaveSession сохраняет сессию (upsert по directory_name).
func (g *PostgresGateway) SaveSession(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (directory_name, last_index, total_images, updated_at, is_done)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (directory_name) DO UPDATE
		SET last_index = EXCLUDED.last_index,
		    total_images = EXCLUDED.total_images,
		    updated_at = EXCLUDED.updated_at,
		    is_done = EXCLUDED.is_done`

	_, err := g.pool.Exec(ctx, query,
		session.DirectoryName, session.LastIndex, session.TotalImages,
		session.UpdatedAt, session.IsDone,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения сессии: %w", err)
	}
	return nil
}

// GetAllSessions возвращает все сессии, свежие первыми.
func (g *PostgresGateway) GetAllSessions(ctx context.Context) ([]*model.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions ORDER BY updated_at DESC`, sessionColumns)

	rows, err := g.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка сессий: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s := &model.Session{}
		if err := rows.Scan(&s.DirectoryName, &s.LastIndex, &s.TotalImages, &s.UpdatedAt, &s.IsDone); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сессии: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации сессий: %w", err)
	}
	return sessions, nil
}

// GetDecisionsForDirectory возвращает карту relative_path → решение.
func (g *PostgresGateway) GetDecisionsForDirectory(ctx context.Context, directoryName string) (map[string]model.Decision, error) {
	query := `SELECT relative_path, decision FROM decisions WHERE directory_name = $1`

	rows, err := g.pool.Query(ctx, query, directoryName)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения решений: %w", err)
	}
	defer rows.Close()

	decisions := make(map[string]model.Decision)
	for rows.Next() {
		var relPath, decision string
		if err := rows.Scan(&relPath, &decision); err != nil {
			return nil, fmt.Errorf("ошибка сканирования решения: %w", err)
		}
		decisions[relPath] = model.Decision(decision)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации решений: %w", err)
	}
	return decisions, nil
}

// SaveDecision сохраняет решение (upsert по паре ключей).
func (g *PostgresGateway) SaveDecision(ctx context.Context, rec model.DecisionRecord) error {
	query := `
		INSERT INTO decisions (directory_name, relative_path, decision)
		VALUES ($1, $2, $3)
		ON CONFLICT (directory_name, relative_path) DO UPDATE
		SET decision = EXCLUDED.decision`

	_, err := g.pool.Exec(ctx, query, rec.DirectoryName, rec.RelativePath, string(rec.Decision))
	if err != nil {
		return fmt.Errorf("ошибка сохранения решения: %w", err)
	}
	return nil
}

// RelinkSession переносит сессию и решения на новое имя директории.
// Оба шага выполняются в одной транзакции; onProgress вызывается
// после переноса каждого решения с (count, total).
func (g *PostgresGateway) RelinkSession(ctx context.Context, oldName, newName string, onProgress ProgressFunc) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Шаг 1: перенос сессии (та же запись, новый ключ)
	if _, err := getSession(ctx, tx, oldName); err != nil {
		return fmt.Errorf("сессия %s: %w", oldName, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET directory_name = $1 WHERE directory_name = $2`,
		newName, oldName,
	); err != nil {
		return fmt.Errorf("ошибка переноса сессии %s → %s: %w", oldName, newName, err)
	}

	// Шаг 2: перенос решений по одному с прогрессом
	rows, err := tx.Query(ctx,
		`SELECT relative_path FROM decisions WHERE directory_name = $1 ORDER BY relative_path`,
		oldName,
	)
	if err != nil {
		return fmt.Errorf("ошибка перечисления решений %s: %w", oldName, err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return fmt.Errorf("ошибка сканирования пути: %w", err)
		}
		paths = append(paths, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ошибка итерации путей: %w", err)
	}

	total := len(paths)
	for i, p := range paths {
		if _, err := tx.Exec(ctx,
			`UPDATE decisions SET directory_name = $1 WHERE directory_name = $2 AND relative_path = $3`,
			newName, oldName, p,
		); err != nil {
			return fmt.Errorf("ошибка переноса решения %s: %w", p, err)
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	g.logger.Info("Решения перенесены",
		slog.String("old", oldName),
		slog.String("new", newName),
		slog.Int("decisions", total),
	)
	return nil
}

// StoreHandle сохраняет привязку директории (upsert).
func (g *PostgresGateway) StoreHandle(ctx context.Context, directoryName string, handle model.DirHandle) error {
	query := `
		INSERT INTO handles (directory_name, path, writable)
		VALUES ($1, $2, $3)
		ON CONFLICT (directory_name) DO UPDATE
		SET path = EXCLUDED.path,
		    writable = EXCLUDED.writable`

	_, err := g.pool.Exec(ctx, query, directoryName, handle.Path, handle.Writable)
	if err != nil {
		return fmt.Errorf("ошибка сохранения привязки: %w", err)
	}
	return nil
}

// GetHandle возвращает привязку или ErrNotFound.
func (g *PostgresGateway) GetHandle(ctx context.Context, directoryName string) (*model.DirHandle, error) {
	query := `SELECT path, writable FROM handles WHERE directory_name = $1`

	h := &model.DirHandle{}
	err := g.pool.QueryRow(ctx, query, directoryName).Scan(&h.Path, &h.Writable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения привязки: %w", err)
	}
	return h, nil
}

// DeleteHandle удаляет привязку. Отсутствие записи — не ошибка.
func (g *PostgresGateway) DeleteHandle(ctx context.Context, directoryName string) error {
	_, err := g.pool.Exec(ctx, `DELETE FROM handles WHERE directory_name = $1`, directoryName)
	if err != nil {
		return fmt.Errorf("ошибка удаления привязки: %w", err)
	}
	return nil
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ Gateway = (*PostgresGateway)(nil)
