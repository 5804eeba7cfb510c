// Пакет view — конечный автомат представлений сессии разбора.
//
// Жизненный цикл: idle → culling ⇄ summary, из любого представления
// возврат в idle при закрытии директории. Переход culling → summary
// происходит автоматически, когда не остаётся непросмотренных записей;
// обратный переход summary → culling — после undo или очистки,
// вернувшей в каталог записи со статусом pending.
//
// Потокобезопасен через sync.RWMutex. На стороне remote представление
// не вычисляется, а принимается из широковещательных сообщений host —
// для этого есть ForceView без валидации переходов.
package view

import (
	"fmt"
	"sync"
)

// View — текущее представление сессии.
type View string

const (
	// ViewIdle — директория не открыта
	ViewIdle View = "idle"
	// ViewCulling — активный разбор изображений
	ViewCulling View = "culling"
	// ViewSummary — все решения приняты, показана сводка
	ViewSummary View = "summary"
)

// Operation — операция над сессией.
type Operation string

const (
	OpDecide  Operation = "decide"
	OpUndo    Operation = "undo"
	OpCleanup Operation = "cleanup"
	OpExport  Operation = "export"
	OpRelink  Operation = "relink"
)

// StateMachine — конечный автомат представлений.
// Потокобезопасен для одновременного чтения/записи.
type StateMachine struct {
	mu      sync.RWMutex
	current View
}

// validTransitions — матрица допустимых переходов.
// Ключ — текущее представление, значение — набор допустимых целевых.
var validTransitions = map[View]map[View]bool{
	ViewIdle:    {ViewCulling: true, ViewSummary: true},
	ViewCulling: {ViewSummary: true, ViewIdle: true},
	ViewSummary: {ViewCulling: true, ViewIdle: true},
}

// allowedOperations — матрица допустимых операций для каждого представления.
var allowedOperations = map[View]map[Operation]bool{
	ViewIdle:    {OpRelink: true},
	ViewCulling: {OpDecide: true, OpUndo: true, OpCleanup: true, OpExport: true, OpRelink: true},
	ViewSummary: {OpUndo: true, OpCleanup: true, OpExport: true, OpRelink: true},
}

// NewStateMachine создаёт конечный автомат в представлении idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: ViewIdle,
	}
}

// Current возвращает текущее представление.
func (sm *StateMachine) Current() View {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// CanTransitionTo проверяет, допустим ли переход в указанное представление.
func (sm *StateMachine) CanTransitionTo(target View) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	transitions, ok := validTransitions[sm.current]
	if !ok {
		return false
	}
	return transitions[target]
}

// TransitionTo выполняет переход в указанное представление.
// Переход в текущее представление — no-op без ошибки (повторное
// вычисление представления после мутации каталога штатно).
func (sm *StateMachine) TransitionTo(target View) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidView(target) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("недопустимое целевое представление: %q", target),
		}
	}

	if target == sm.current {
		return nil
	}

	transitions, ok := validTransitions[sm.current]
	if !ok || !transitions[target] {
		return &TransitionError{
			Code: "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим",
				sm.current, target),
		}
	}

	sm.current = target
	return nil
}

// CanPerform проверяет, допустима ли операция в текущем представлении.
func (sm *StateMachine) CanPerform(op Operation) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ops, ok := allowedOperations[sm.current]
	if !ok {
		return false
	}
	return ops[op]
}

// ForceView устанавливает представление напрямую без валидации переходов.
// Используется remote для применения представления из NAVIGATE/INIT_SYNC.
func (sm *StateMachine) ForceView(target View) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.current = target
}

// TransitionError — ошибка перехода между представлениями.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// isValidView проверяет, является ли строка допустимым представлением.
func isValidView(v View) bool {
	switch v {
	case ViewIdle, ViewCulling, ViewSummary:
		return true
	default:
		return false
	}
}

// ParseView преобразует строку в View.
// Возвращает ошибку для недопустимых значений.
func ParseView(s string) (View, error) {
	v := View(s)
	if !isValidView(v) {
		return "", fmt.Errorf("недопустимое представление: %q, допустимые: idle, culling, summary", s)
	}
	return v, nil
}
