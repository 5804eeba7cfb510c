// Пакет catalog — потокобезопасный in-memory каталог изображений.
//
// Каталог строится при открытии директории из результата сканирования,
// слитого с сохранёнными решениями (Load), и обновляется синхронно
// при принятии решений (SetDecision) и очистке (RemoveByID).
//
// Порядок записей фиксируется при сканировании и не меняется решениями:
// решение меняет состояние записи на месте. Единственное исключение —
// удаление записей после физической очистки (RemoveByID).
//
// Не персистентный: при повторном открытии директории пересобирается
// сканированием и слиянием с сохранёнными решениями.
package catalog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/bigkaa/gofotosort/internal/domain/model"
)

// Catalog — потокобезопасный упорядоченный каталог изображений.
// Использует sync.RWMutex для конкурентного чтения и
// эксклюзивной записи.
type Catalog struct {
	mu      sync.RWMutex
	records []model.ImageRecord
	byPath  map[string]int // relative_path → позиция в records
	dirName string
	ready   bool
	logger  *slog.Logger
}

// New создаёт пустой каталог. Для заполнения вызовите Load.
func New(logger *slog.Logger) *Catalog {
	return &Catalog{
		byPath: make(map[string]int),
		logger: logger.With(slog.String("component", "catalog")),
	}
}

// Load заменяет содержимое каталога результатом сканирования,
// слитым с сохранёнными решениями: для каждой записи решение
// перезаписывается сохранённым значением, если оно есть, иначе pending.
// Слияние идемпотентно: повторная загрузка той же директории с теми же
// решениями даёт каталог с теми же парами (relative_path, decision)
// в том же порядке.
//
// Дубликат relative_path — дефект сканирования, возвращается ошибка.
func (c *Catalog) Load(dirName string, records []model.ImageRecord, decisions map[string]model.Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byPath := make(map[string]int, len(records))
	loaded := make([]model.ImageRecord, len(records))
	for i, rec := range records {
		if _, ok := byPath[rec.RelativePath]; ok {
			return fmt.Errorf("дубликат relative_path %q в результате сканирования", rec.RelativePath)
		}
		byPath[rec.RelativePath] = i

		if d, ok := decisions[rec.RelativePath]; ok {
			rec.Decision = d
		} else {
			rec.Decision = model.DecisionPending
		}
		loaded[i] = rec
	}

	c.records = loaded
	c.byPath = byPath
	c.dirName = dirName
	c.ready = true

	c.logger.Info("Каталог построен",
		slog.String("directory", dirName),
		slog.Int("records", len(loaded)),
	)

	return nil
}

// Clear сбрасывает каталог в пустое состояние (директория закрыта).
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = nil
	c.byPath = make(map[string]int)
	c.dirName = ""
	c.ready = false
}

// IsReady возвращает true, если каталог построен и готов к использованию.
func (c *Catalog) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// DirectoryName возвращает имя открытой директории.
func (c *Catalog) DirectoryName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirName
}

// Len возвращает количество записей в каталоге.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Get возвращает запись по индексу.
// Возвращает false, если индекс вне диапазона.
func (c *Catalog) Get(index int) (model.ImageRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if index < 0 || index >= len(c.records) {
		return model.ImageRecord{}, false
	}
	return c.records[index], true
}

// GetByID возвращает запись и её текущий индекс по ID.
// Возвращает false, если запись не найдена.
func (c *Catalog) GetByID(id string) (model.ImageRecord, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, rec := range c.records {
		if rec.ID == id {
			return rec, i, true
		}
	}
	return model.ImageRecord{}, 0, false
}

// SetDecision устанавливает решение для записи по индексу.
// Возвращает изменённую запись или ошибку, если индекс вне диапазона.
func (c *Catalog) SetDecision(index int, decision model.Decision) (model.ImageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.records) {
		return model.ImageRecord{}, fmt.Errorf("индекс %d вне диапазона каталога (0..%d)", index, len(c.records)-1)
	}

	c.records[index].Decision = decision
	return c.records[index], nil
}

// RemoveByID удаляет запись из каталога по ID со сдвигом последующих
// записей. Возвращает true, если запись была найдена и удалена.
func (c *Catalog) RemoveByID(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, rec := range c.records {
		if rec.ID == id {
			c.records = append(c.records[:i], c.records[i+1:]...)
			c.rebuildPathIndex()
			return true
		}
	}
	return false
}

// rebuildPathIndex пересобирает byPath после сдвига записей.
// Вызывается под уже взятым мьютексом.
func (c *Catalog) rebuildPathIndex() {
	c.byPath = make(map[string]int, len(c.records))
	for i, rec := range c.records {
		c.byPath[rec.RelativePath] = i
	}
}

// Relocate меняет имя директории каталога и перепривязывает файловые
// ссылки записей к новому корню. Вызывается после relink, если
// мигрированная директория открыта в текущем сеансе.
func (c *Catalog) Relocate(newName, newRoot string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return
	}

	c.dirName = newName
	for i := range c.records {
		c.records[i].FileRef = filepath.Join(newRoot, filepath.FromSlash(c.records[i].RelativePath))
	}

	c.logger.Info("Каталог перепривязан",
		slog.String("directory", newName),
		slog.String("root", newRoot),
	)
}

// Records возвращает копию всех записей каталога в порядке сканирования.
func (c *Catalog) Records() []model.ImageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]model.ImageRecord, len(c.records))
	copy(result, c.records)
	return result
}

// Simplified возвращает записи без файловых ссылок для передачи remote.
func (c *Catalog) Simplified() []model.SimpleRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]model.SimpleRecord, len(c.records))
	for i := range c.records {
		result[i] = c.records[i].Simplify()
	}
	return result
}

// NextPending возвращает наименьший индекс записи pending, строго
// больший after. Если такого нет — ищет pending с начала каталога.
// Если pending-записей не осталось, возвращает Len() (разбор завершён).
func (c *Catalog) NextPending(after int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := after + 1; i < len(c.records); i++ {
		if c.records[i].Decision == model.DecisionPending {
			return i
		}
	}
	for i := range c.records {
		if c.records[i].Decision == model.DecisionPending {
			return i
		}
	}
	return len(c.records)
}

// FirstPending возвращает индекс первой pending-записи в порядке
// сканирования, либо Len(), если таких нет.
func (c *Catalog) FirstPending() int {
	return c.NextPending(-1)
}

// AllDecided возвращает true, если не осталось записей pending.
func (c *Catalog) AllDecided() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.records {
		if c.records[i].Decision == model.DecisionPending {
			return false
		}
	}
	return true
}

// Stats возвращает производную статистику каталога.
func (c *Catalog) Stats() model.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := model.Stats{Total: len(c.records)}
	for i := range c.records {
		switch c.records[i].Decision {
		case model.DecisionKeep:
			s.Kept++
		case model.DecisionDelete:
			s.Deleted++
		default:
			s.Pending++
		}
	}
	if s.Total > 0 {
		s.Progress = (s.Kept + s.Deleted) * 100 / s.Total
	}
	return s
}
