package view

import (
	"errors"
	"sync"
	"testing"
)

// TestNewStateMachine проверяет начальное представление.
func TestNewStateMachine(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != ViewIdle {
		t.Errorf("начальное представление: ожидалось idle, получено %q", sm.Current())
	}
}

// TestTransitions_OpenDirectory проверяет переходы при открытии директории.
func TestTransitions_OpenDirectory(t *testing.T) {
	// Директория с непросмотренными записями
	sm := NewStateMachine()
	if !sm.CanTransitionTo(ViewCulling) {
		t.Error("idle → culling должен быть допустим")
	}
	if err := sm.TransitionTo(ViewCulling); err != nil {
		t.Fatalf("idle → culling: неожиданная ошибка: %v", err)
	}
	if sm.Current() != ViewCulling {
		t.Errorf("ожидалось представление culling, получено %q", sm.Current())
	}

	// Директория, в которой всё уже решено
	sm2 := NewStateMachine()
	if err := sm2.TransitionTo(ViewSummary); err != nil {
		t.Fatalf("idle → summary: неожиданная ошибка: %v", err)
	}
	if sm2.Current() != ViewSummary {
		t.Errorf("ожидалось представление summary, получено %q", sm2.Current())
	}
}

// TestTransitions_Completion проверяет переход culling → summary и обратно.
func TestTransitions_Completion(t *testing.T) {
	sm := NewStateMachine()
	sm.TransitionTo(ViewCulling)

	if err := sm.TransitionTo(ViewSummary); err != nil {
		t.Fatalf("culling → summary: неожиданная ошибка: %v", err)
	}

	// После undo снова появились pending-записи
	if err := sm.TransitionTo(ViewCulling); err != nil {
		t.Fatalf("summary → culling: неожиданная ошибка: %v", err)
	}
	if sm.Current() != ViewCulling {
		t.Errorf("ожидалось представление culling, получено %q", sm.Current())
	}
}

// TestTransitions_SameView проверяет, что переход в текущее представление — no-op.
func TestTransitions_SameView(t *testing.T) {
	sm := NewStateMachine()
	sm.TransitionTo(ViewCulling)

	if err := sm.TransitionTo(ViewCulling); err != nil {
		t.Errorf("culling → culling должен быть no-op, получена ошибка: %v", err)
	}
	if sm.Current() != ViewCulling {
		t.Errorf("представление не должно измениться, текущее: %q", sm.Current())
	}
}

// TestTransitions_Invalid проверяет запрещённые переходы.
func TestTransitions_Invalid(t *testing.T) {
	sm := NewStateMachine()

	err := sm.TransitionTo(View("unknown"))
	if err == nil {
		t.Fatal("переход в неизвестное представление должен вернуть ошибку")
	}

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("ожидалась TransitionError, получена %T", err)
	}
	if te.Code != "INVALID_TRANSITION" {
		t.Errorf("ожидался код INVALID_TRANSITION, получен %q", te.Code)
	}
}

// TestAllowedOperations проверяет матрицу операций для каждого представления.
func TestAllowedOperations(t *testing.T) {
	tests := []struct {
		view     View
		allowed  []Operation
		disallow []Operation
	}{
		{
			view:     ViewIdle,
			allowed:  []Operation{OpRelink},
			disallow: []Operation{OpDecide, OpUndo, OpCleanup, OpExport},
		},
		{
			view:     ViewCulling,
			allowed:  []Operation{OpDecide, OpUndo, OpCleanup, OpExport, OpRelink},
			disallow: nil,
		},
		{
			view:     ViewSummary,
			allowed:  []Operation{OpUndo, OpCleanup, OpExport, OpRelink},
			disallow: []Operation{OpDecide},
		},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		sm.ForceView(tt.view)

		for _, op := range tt.allowed {
			if !sm.CanPerform(op) {
				t.Errorf("представление %s: операция %s должна быть допустима", tt.view, op)
			}
		}

		for _, op := range tt.disallow {
			if sm.CanPerform(op) {
				t.Errorf("представление %s: операция %s не должна быть допустима", tt.view, op)
			}
		}
	}
}

// TestForceView проверяет прямую установку представления без валидации.
func TestForceView(t *testing.T) {
	sm := NewStateMachine()

	// idle → summary напрямую (как при применении NAVIGATE на remote)
	sm.ForceView(ViewSummary)
	if sm.Current() != ViewSummary {
		t.Errorf("ожидалось представление summary, получено %q", sm.Current())
	}

	sm.ForceView(ViewIdle)
	if sm.Current() != ViewIdle {
		t.Errorf("ожидалось представление idle, получено %q", sm.Current())
	}
}

// TestConcurrentAccess проверяет потокобезопасность конечного автомата.
func TestConcurrentAccess(t *testing.T) {
	sm := NewStateMachine()

	var wg sync.WaitGroup
	const goroutines = 50

	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()

			_ = sm.Current()
			_ = sm.CanTransitionTo(ViewCulling)
			_ = sm.CanPerform(OpDecide)
		}()
	}

	wg.Wait()
}

// TestParseView проверяет парсинг строки в View.
func TestParseView(t *testing.T) {
	tests := []struct {
		input   string
		want    View
		wantErr bool
	}{
		{"idle", ViewIdle, false},
		{"culling", ViewCulling, false},
		{"summary", ViewSummary, false},
		{"invalid", "", true},
		{"", "", true},
		{"Culling", "", true}, // Case-sensitive
	}

	for _, tt := range tests {
		got, err := ParseView(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseView(%q): ожидалась ошибка", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseView(%q): неожиданная ошибка: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseView(%q): ожидалось %q, получено %q", tt.input, tt.want, got)
		}
	}
}
