// relink.go — миграция проекта на новое имя директории.
//
// Последовательность из трёх шагов, не транзакционная:
//  1. Перенос записи сессии на новый ключ
//  2. Перенос каждой записи решения с прогрессом (count, total)
//  3. Замена локальной привязки директории
//
// Прерывание между шагами оставляет смешанные ключи; повторный запуск
// той же миграции досовершает перенос (перенос каждой записи
// идемпотентен).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/repository"
)

// RelinkResult — итог миграции.
type RelinkResult struct {
	OldName  string `json:"oldName"`
	NewName  string `json:"newName"`
	Path     string `json:"path"`
	Migrated int    `json:"migrated"`
	Writable bool   `json:"writable"`
}

// Relink переносит сессию, решения и привязку директории со старого
// имени на новое. Если мигрируемая директория открыта в текущем
// сеансе, каталог перепривязывается к новому имени и пути.
func (s *TriageService) Relink(ctx context.Context, oldName, newName, newPath string, onProgress repository.ProgressFunc) (*RelinkResult, *ServiceError) {
	s.mu.Lock()
	res, relocated, serr := s.relinkLocked(ctx, oldName, newName, newPath, onProgress)
	s.mu.Unlock()

	if relocated {
		s.notifyCatalogReplaced()
	}
	return res, serr
}

func (s *TriageService) relinkLocked(ctx context.Context, oldName, newName, newPath string, onProgress repository.ProgressFunc) (*RelinkResult, bool, *ServiceError) {
	// 1. Валидация входных данных
	if oldName == "" || newName == "" {
		return nil, false, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Имена директорий не могут быть пустыми",
		}
	}
	if oldName == newName {
		return nil, false, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Старое и новое имена директорий совпадают",
		}
	}

	absPath, err := filepath.Abs(newPath)
	if err != nil {
		return nil, false, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Некорректный путь: %s", err.Error()),
		}
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Директория недоступна: %s", err.Error()),
		}
	}
	if !info.IsDir() {
		return nil, false, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Путь %q не является директорией", newPath),
		}
	}

	if !s.vsm.CanPerform(view.OpRelink) {
		return nil, false, &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeViewNotAllowed,
			Message:    fmt.Sprintf("Relink недоступен в представлении %s", s.vsm.Current()),
		}
	}

	// 2. Дожидаемся отложенных контрольных точек: записи под старым
	// именем не должны появиться после миграции ключей
	s.cp.Flush()

	// 3. Шаги 1-2: перенос сессии и решений с прогрессом
	migrated := 0
	err = s.gw.RelinkSession(ctx, oldName, newName, func(count, total int) {
		migrated = count
		if onProgress != nil {
			onProgress(count, total)
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, &ServiceError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Сеанс для директории %q не найден", oldName),
			}
		}
		return nil, false, &ServiceError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    fmt.Sprintf("Ошибка миграции: %s", err.Error()),
		}
	}

	// 4. Шаг 3: замена локальной привязки
	writable := dirWritable(absPath)
	_ = s.gw.DeleteHandle(ctx, oldName)
	_ = s.gw.StoreHandle(ctx, newName, model.DirHandle{Path: absPath, Writable: writable})

	// 5. Если мигрированная директория открыта, перепривязываем каталог
	relocated := s.cat.IsReady() && s.cat.DirectoryName() == oldName
	if relocated {
		s.cat.Relocate(newName, absPath)
		s.enqueueCheckpoint(nil)
	}

	s.logger.Info("Проект перенесён",
		slog.String("old_name", oldName),
		slog.String("new_name", newName),
		slog.String("path", absPath),
		slog.Int("migrated", migrated),
	)

	return &RelinkResult{
		OldName:  oldName,
		NewName:  newName,
		Path:     absPath,
		Migrated: migrated,
		Writable: writable,
	}, relocated, nil
}
