// Пакет cursor — позиция разбора и стек истории решений.
//
// Tracker хранит индекс текущей записи каталога и упорядоченный стек
// индексов принятых решений (последнее решение сверху). Стек
// обеспечивает ровно один уровень последовательной отмены: pop
// возвращает индекс последнего решения.
//
// Курсор может равняться длине каталога: это означает «разбор
// завершён», а не указание на запись.
package cursor

import "sync"

// Tracker — потокобезопасная позиция разбора с историей решений.
type Tracker struct {
	mu      sync.RWMutex
	current int
	history []int
}

// NewTracker создаёт трекер с курсором в нулевой позиции
// и пустой историей.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Current возвращает индекс текущей записи.
func (t *Tracker) Current() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Set устанавливает курсор на указанный индекс.
func (t *Tracker) Set(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = index
}

// Push добавляет индекс принятого решения на вершину стека истории.
func (t *Tracker) Push(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, index)
}

// Pop снимает последний индекс со стека истории.
// Возвращает false, если история пуста.
func (t *Tracker) Pop() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) == 0 {
		return 0, false
	}
	last := t.history[len(t.history)-1]
	t.history = t.history[:len(t.history)-1]
	return last, true
}

// HistoryLen возвращает глубину стека истории.
func (t *Tracker) HistoryLen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.history)
}

// ClearHistory очищает стек истории. Вызывается после bulk-удаления:
// записанные индексы больше не соответствуют каталогу со сдвинутыми
// записями.
func (t *Tracker) ClearHistory() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
}

// Reset устанавливает курсор и очищает историю.
// Вызывается при открытии новой директории.
func (t *Tracker) Reset(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = index
	t.history = nil
}
