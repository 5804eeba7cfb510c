// Пакет scan — рекурсивное сканирование директории с изображениями.
//
// Сканирование двухфазное: сначала детерминированный обход дерева
// (filepath.WalkDir, лексикографический порядок) собирает кандидатов
// по allow-list расширений, затем пул воркеров проверяет файлы stat-ом
// с ограниченным параллелизмом. Порядок записей в результате равен
// порядку обхода и воспроизводим между запусками.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/gofotosort/internal/domain/model"
)

// allowedExtensions — расширения файлов изображений (в нижнем регистре).
var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true, ".avif": true,
	".heic": true, ".heif": true, ".tif": true, ".tiff": true,
	".dng": true, ".raw": true, ".cr2": true, ".cr3": true,
	".nef": true, ".arw": true, ".orf": true, ".rw2": true,
}

// renderableExtensions — подмножество форматов, которые браузер
// отображает напрямую. Остальные идут через описание-заглушку.
var renderableExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true, ".avif": true,
}

// contentTypes — MIME-типы поддерживаемых форматов.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
	".heic": "image/heic",
	".heif": "image/heif",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// AllowedFile возвращает true, если имя файла проходит allow-list расширений.
func AllowedFile(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Renderable возвращает true, если формат отображается браузером напрямую.
func Renderable(name string) bool {
	return renderableExtensions[strings.ToLower(filepath.Ext(name))]
}

// ContentType возвращает MIME-тип по расширению файла,
// либо application/octet-stream для неизвестных форматов.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Result — результат сканирования директории.
type Result struct {
	// Records — записи в порядке обхода, решение у всех pending
	Records []model.ImageRecord
	// RootName — базовое имя корневой директории
	RootName string
}

// ProgressFunc — колбэк прогресса сканирования: текущее количество
// найденных изображений.
type ProgressFunc func(count int)

// Scanner — сканер директорий с изображениями.
type Scanner struct {
	workers int
	logger  *slog.Logger
}

// New создаёт сканер с указанным числом воркеров проверки файлов.
func New(workers int, logger *slog.Logger) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		workers: workers,
		logger:  logger.With(slog.String("component", "scanner")),
	}
}

// Scan рекурсивно обходит директорию handle.Path и возвращает записи
// всех найденных изображений. relative_path всегда использует «/»
// независимо от ОС. onProgress (опционально) вызывается по мере
// обнаружения кандидатов с нарастающим счётчиком.
func (s *Scanner) Scan(ctx context.Context, handle model.DirHandle, onProgress ProgressFunc) (*Result, error) {
	root, err := filepath.Abs(handle.Path)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь %q: %w", handle.Path, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("директория %q недоступна: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q не является директорией", root)
	}

	// Фаза 1: детерминированный обход, сбор кандидатов
	var candidates []string
	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Недоступные поддиректории пропускаем, не прерывая обход
			s.logger.Warn("Пропуск недоступного пути",
				slog.String("path", path),
				slog.String("error", walkErr.Error()),
			)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			// Скрытые директории (.thumbnails и т.п.) не сканируем
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !AllowedFile(d.Name()) {
			return nil
		}
		candidates = append(candidates, path)
		count++
		if onProgress != nil {
			onProgress(count)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода директории %s: %w", root, err)
	}

	// Фаза 2: проверка кандидатов stat-ом в пуле воркеров.
	// Результат пишется в слот своего индекса, порядок сохраняется.
	records := make([]model.ImageRecord, len(candidates))
	valid := make([]bool, len(candidates))
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fi, err := os.Stat(path)
			if err != nil || !fi.Mode().IsRegular() {
				skipped.Add(1)
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				skipped.Add(1)
				return nil
			}
			records[i] = model.ImageRecord{
				ID:           uuid.New().String(),
				Name:         filepath.Base(path),
				RelativePath: filepath.ToSlash(rel),
				FileRef:      path,
				Decision:     model.DecisionPending,
			}
			valid[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ошибка проверки файлов: %w", err)
	}

	// Уплотнение с сохранением порядка
	result := make([]model.ImageRecord, 0, len(candidates))
	for i := range records {
		if valid[i] {
			result = append(result, records[i])
		}
	}

	s.logger.Info("Сканирование завершено",
		slog.String("root", root),
		slog.Int("found", len(result)),
		slog.Int64("skipped", skipped.Load()),
	)

	return &Result{
		Records:  result,
		RootName: filepath.Base(root),
	}, nil
}
