package peer

import (
	"fmt"
	"sync"
)

// LinkState — состояние пирингового соединения.
type LinkState string

const (
	// LinkUnestablished — соединение создано, рукопожатие не завершено
	LinkUnestablished LinkState = "unestablished"
	// LinkOpen — соединение активно, сообщения ходят в обе стороны
	LinkOpen LinkState = "open"
	// LinkClosed — соединение завершено; повторное открытие невозможно,
	// переподключение создаёт новую связь
	LinkClosed LinkState = "closed"
)

// validLinkTransitions — матрица допустимых переходов связи.
var validLinkTransitions = map[LinkState]map[LinkState]bool{
	LinkUnestablished: {LinkOpen: true, LinkClosed: true},
	LinkOpen:          {LinkClosed: true},
	LinkClosed:        {},
}

// Link — жизненный цикл одного пирингового соединения.
// Потокобезопасен: состояние читают насос чтения, насос записи и
// HTTP-обработчик подключения.
type Link struct {
	mu    sync.RWMutex
	state LinkState
}

// NewLink создаёт связь в состоянии unestablished.
func NewLink() *Link {
	return &Link{
		state: LinkUnestablished,
	}
}

// State возвращает текущее состояние связи.
func (l *Link) State() LinkState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo выполняет переход в указанное состояние.
// Переход в текущее состояние — no-op без ошибки: закрытие связи
// может инициироваться обеими горутинами насосов одновременно.
func (l *Link) TransitionTo(target LinkState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if target == l.state {
		return nil
	}

	transitions, ok := validLinkTransitions[l.state]
	if !ok || !transitions[target] {
		return &LinkError{
			Code: "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим",
				l.state, target),
		}
	}

	l.state = target
	return nil
}

// LinkError — ошибка перехода между состояниями связи.
type LinkError struct {
	Code    string
	Message string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
