// cleanup.go — bulk-удаление отмеченных файлов и выдача права на запись.
//
// Очистка проходит по всем записям каталога с решением delete в порядке
// сканирования и удаляет файлы с диска. Требует привязки директории с
// правом на запись; без него операция отклоняется целиком, не начав
// ни одного удаления. Ошибка удаления одного файла не прерывает проход.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/repository"
)

// Prometheus метрики очистки.
var (
	// cleanupRemovedTotal — количество удалённых файлов.
	cleanupRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_cleanup_removed_total",
		Help: "Общее количество файлов, удалённых очисткой",
	})

	// cleanupFailuresTotal — количество ошибок удаления.
	cleanupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_cleanup_failures_total",
		Help: "Общее количество ошибок удаления файлов при очистке",
	})
)

// CleanupResult — итог bulk-удаления.
type CleanupResult struct {
	// Removed — количество удалённых файлов
	Removed int `json:"removed"`
	// Failed — количество файлов, удалить которые не удалось
	Failed int `json:"failed"`
	// Total — количество записей с решением delete
	Total int `json:"total"`
	// CurrentIndex — курсор после пересчёта
	CurrentIndex int `json:"currentIndex"`
	// View — представление после очистки
	View view.View `json:"view"`
}

// GrantResult — итог выдачи права на запись.
type GrantResult struct {
	DirectoryName string `json:"directoryName"`
	Path          string `json:"path"`
	Writable      bool   `json:"writable"`
}

// Cleanup удаляет с диска все файлы с решением delete.
//
// Порядок:
//  1. Привязка директории с правом на запись, иначе отказ целиком
//  2. Последовательный проход по отмеченным записям: удаление файла,
//     сброс сохранённого решения в pending, удаление записи из каталога;
//     ошибка одного файла логируется, проход продолжается
//  3. Прогресс (processed, total) после каждой попытки
//  4. Пересчёт курсора по стабильному id просматриваемой записи,
//     очистка истории отмен
func (s *TriageService) Cleanup(ctx context.Context, onProgress repository.ProgressFunc) (*CleanupResult, *ServiceError) {
	s.mu.Lock()
	res, serr := s.cleanupLocked(ctx, onProgress)
	s.mu.Unlock()

	if serr == nil && res.Removed > 0 {
		s.notifyCatalogReplaced()
	}
	return res, serr
}

func (s *TriageService) cleanupLocked(ctx context.Context, onProgress repository.ProgressFunc) (*CleanupResult, *ServiceError) {
	// 1. Глобальный предохранитель
	if !s.cfg.AllowDelete {
		return nil, &ServiceError{
			StatusCode: 403,
			Code:       apierrors.CodeForbidden,
			Message:    "Физическое удаление файлов отключено (FS_ALLOW_DELETE)",
		}
	}

	// 2. Сеанс должен быть открыт
	if !s.cat.IsReady() {
		return nil, &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeNoCatalog,
			Message:    "Директория не открыта",
		}
	}

	if !s.vsm.CanPerform(view.OpCleanup) {
		return nil, &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeViewNotAllowed,
			Message:    fmt.Sprintf("Очистка недоступна в представлении %s", s.vsm.Current()),
		}
	}

	// 3. Требуется привязка с правом на запись; без неё операция
	// отклоняется до первого удаления
	dirName := s.cat.DirectoryName()
	handle, err := s.gw.GetHandle(ctx, dirName)
	if err != nil || !handle.Writable {
		return nil, &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeNotWritable,
			Message:    fmt.Sprintf("Нет права на запись для директории %q, выдайте его через grant", dirName),
		}
	}

	// 4. Отбираем цели в порядке каталога
	var targets []model.ImageRecord
	for _, rec := range s.cat.Records() {
		if rec.Decision == model.DecisionDelete {
			targets = append(targets, rec)
		}
	}
	total := len(targets)

	if total == 0 {
		return &CleanupResult{
			CurrentIndex: s.cur.Current(),
			View:         s.vsm.Current(),
		}, nil
	}

	// 5. Запоминаем просматриваемую запись по стабильному id:
	// индексы при удалении записей сдвигаются
	var viewingID string
	if rec, ok := s.cat.Get(s.cur.Current()); ok {
		viewingID = rec.ID
	}

	// 6. Дожидаемся отложенных контрольных точек: прямые сбросы решений
	// ниже не должны быть перезаписаны очередью
	s.cp.Flush()

	// 7. Последовательный проход
	removed, failed, processed := 0, 0, 0
	for _, t := range targets {
		if err := os.Remove(t.FileRef); err != nil {
			failed++
			cleanupFailuresTotal.Inc()
			s.logger.Warn("Не удалось удалить файл",
				slog.String("relative_path", t.RelativePath),
				slog.String("error", err.Error()),
			)
		} else {
			removed++
			cleanupRemovedTotal.Inc()
			// Сброс сохранённого решения: повторное сканирование не
			// должно поднять delete для уже отсутствующего пути
			_ = s.gw.SaveDecision(ctx, model.DecisionRecord{
				DirectoryName: dirName,
				RelativePath:  t.RelativePath,
				Decision:      model.DecisionPending,
			})
			s.cat.RemoveByID(t.ID)
		}

		processed++
		if onProgress != nil {
			onProgress(processed, total)
		}
	}

	// 8. Пересчёт курсора: просматриваемая запись, иначе первая
	// pending, иначе 0
	next := 0
	if _, idx, ok := s.cat.GetByID(viewingID); ok {
		next = idx
	} else if fp := s.cat.FirstPending(); fp < s.cat.Len() {
		next = fp
	}
	s.cur.Set(next)

	// 9. Индексы истории больше не соответствуют каталогу
	s.cur.ClearHistory()

	// 10. Представление по фактическому состоянию каталога
	target := view.ViewCulling
	if s.cat.AllDecided() {
		target = view.ViewSummary
	}
	if err := s.vsm.TransitionTo(target); err != nil {
		s.logger.Error("Ошибка перехода представления после очистки",
			slog.String("target", string(target)),
			slog.String("error", err.Error()),
		)
	}

	s.enqueueCheckpoint(nil)
	s.updateCatalogMetrics()

	s.logger.Info("Очистка завершена",
		slog.String("directory", dirName),
		slog.Int("removed", removed),
		slog.Int("failed", failed),
		slog.Int("total", total),
		slog.Int("cursor", next),
	)

	return &CleanupResult{
		Removed:      removed,
		Failed:       failed,
		Total:        total,
		CurrentIndex: next,
		View:         s.vsm.Current(),
	}, nil
}

// GrantWritable проверяет право на запись в директорию и сохраняет
// привязку с Writable=true. Аналог повторного запроса расширенного
// доступа перед очисткой.
func (s *TriageService) GrantWritable(ctx context.Context, path string) (*GrantResult, *ServiceError) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Некорректный путь: %s", err.Error()),
		}
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Директория недоступна: %s", err.Error()),
		}
	}
	if !info.IsDir() {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Путь %q не является директорией", path),
		}
	}

	if !dirWritable(absPath) {
		return nil, &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeNotWritable,
			Message:    fmt.Sprintf("Директория %q не доступна на запись", path),
		}
	}

	name := filepath.Base(absPath)
	_ = s.gw.StoreHandle(ctx, name, model.DirHandle{Path: absPath, Writable: true})

	s.logger.Info("Выдано право на запись",
		slog.String("directory", name),
		slog.String("path", absPath),
	)

	return &GrantResult{
		DirectoryName: name,
		Path:          absPath,
		Writable:      true,
	}, nil
}

// dirWritable проверяет право на запись созданием пробного файла.
func dirWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".fs-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
