package peer

import (
	"errors"
	"testing"
)

func TestLink_Lifecycle(t *testing.T) {
	l := NewLink()
	if got := l.State(); got != LinkUnestablished {
		t.Fatalf("ожидалось состояние %s, получено %s", LinkUnestablished, got)
	}

	if err := l.TransitionTo(LinkOpen); err != nil {
		t.Fatalf("Ошибка перехода в open: %v", err)
	}
	if got := l.State(); got != LinkOpen {
		t.Fatalf("ожидалось состояние %s, получено %s", LinkOpen, got)
	}

	if err := l.TransitionTo(LinkClosed); err != nil {
		t.Fatalf("Ошибка перехода в closed: %v", err)
	}
	if got := l.State(); got != LinkClosed {
		t.Fatalf("ожидалось состояние %s, получено %s", LinkClosed, got)
	}
}

func TestLink_DirectClose(t *testing.T) {
	l := NewLink()
	if err := l.TransitionTo(LinkClosed); err != nil {
		t.Fatalf("переход unestablished → closed должен быть допустим: %v", err)
	}
}

func TestLink_SameStateNoop(t *testing.T) {
	l := NewLink()
	if err := l.TransitionTo(LinkOpen); err != nil {
		t.Fatalf("Ошибка перехода в open: %v", err)
	}
	if err := l.TransitionTo(LinkOpen); err != nil {
		t.Errorf("повторный переход в то же состояние должен быть no-op, получено %v", err)
	}

	if err := l.TransitionTo(LinkClosed); err != nil {
		t.Fatalf("Ошибка перехода в closed: %v", err)
	}
	if err := l.TransitionTo(LinkClosed); err != nil {
		t.Errorf("повторное закрытие должно быть no-op, получено %v", err)
	}
}

func TestLink_InvalidTransitions(t *testing.T) {
	cases := []struct {
		name   string
		from   []LinkState
		target LinkState
	}{
		{name: "closed → open", from: []LinkState{LinkClosed}, target: LinkOpen},
		{name: "closed → unestablished", from: []LinkState{LinkClosed}, target: LinkUnestablished},
		{name: "open → unestablished", from: []LinkState{LinkOpen}, target: LinkUnestablished},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLink()
			for _, s := range tc.from {
				if err := l.TransitionTo(s); err != nil {
					t.Fatalf("Ошибка подготовки состояния %s: %v", s, err)
				}
			}

			err := l.TransitionTo(tc.target)
			if err == nil {
				t.Fatal("ожидалась ошибка недопустимого перехода")
			}
			var lerr *LinkError
			if !errors.As(err, &lerr) {
				t.Fatalf("ожидалась LinkError, получено %T: %v", err, err)
			}
			if lerr.Code != "INVALID_TRANSITION" {
				t.Errorf("ожидался код INVALID_TRANSITION, получен %s", lerr.Code)
			}
		})
	}
}
