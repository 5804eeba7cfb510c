package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/domain/cursor"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/repository"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
	"github.com/bigkaa/gofotosort/internal/storage/scan"
)

// testLogger возвращает логгер, подавляющий вывод ниже уровня Error.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testEnv — собранный движок разбора с настоящим badger-хранилищем.
type testEnv struct {
	svc *TriageService
	gw  repository.Gateway
	cp  *Checkpointer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	raw, err := repository.NewBadgerGateway(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("не удалось создать badger-хранилище: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })

	gw := NewDegradedGateway(raw, logger)
	cp := NewCheckpointer(gw, 64, logger)
	cp.Start(context.Background())
	t.Cleanup(cp.Stop)

	cfg := &config.Config{
		AllowDelete: true,
		ScanWorkers: 4,
	}

	svc := NewTriageService(
		cfg,
		catalog.New(logger),
		cursor.NewTracker(),
		view.NewStateMachine(),
		scan.New(cfg.ScanWorkers, logger),
		gw,
		cp,
		logger,
	)

	return &testEnv{svc: svc, gw: gw, cp: cp}
}

// createImages создаёт файлы изображений в новой директории.
func createImages(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for i, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("не удалось создать директорию: %v", err)
		}
		if err := os.WriteFile(path, fmt.Appendf(nil, "img-%d", i), 0o644); err != nil {
			t.Fatalf("не удалось создать файл %s: %v", name, err)
		}
	}
	return root
}

// recordingListener накапливает уведомления сеанса.
type recordingListener struct {
	mu        sync.Mutex
	navigates []int
	views     []view.View
	replaced  int
}

func (l *recordingListener) OnNavigate(v view.View, index int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, v)
	l.navigates = append(l.navigates, index)
}

func (l *recordingListener) OnCatalogReplaced() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replaced++
}

func TestTriage_OpenDirectory(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.png")

	snap, serr := env.svc.OpenDirectory(context.Background(), root, nil)
	if serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	if snap.View != view.ViewCulling {
		t.Errorf("ожидалось представление culling, получено %s", snap.View)
	}
	if snap.CurrentIndex != 0 {
		t.Errorf("ожидался курсор 0, получено %d", snap.CurrentIndex)
	}
	if snap.Stats.Total != 2 || snap.Stats.Pending != 2 {
		t.Errorf("ожидалось 2 записи pending, получено %+v", snap.Stats)
	}
	if snap.DirectoryName != filepath.Base(root) {
		t.Errorf("ожидалось имя директории %q, получено %q", filepath.Base(root), snap.DirectoryName)
	}
}

func TestTriage_OpenDirectory_NotADirectory(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg")

	_, serr := env.svc.OpenDirectory(context.Background(), filepath.Join(root, "a.jpg"), nil)
	if serr == nil {
		t.Fatal("ожидалась ошибка для пути на файл")
	}
	if serr.StatusCode != 400 {
		t.Errorf("ожидался статус 400, получено %d", serr.StatusCode)
	}
}

func TestTriage_OpenDirectory_ResumesDecisions(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg", "c.jpg")
	dirName := filepath.Base(root)

	// Сохранённое решение по a.jpg должно пережить переоткрытие
	err := env.gw.SaveDecision(context.Background(), model.DecisionRecord{
		DirectoryName: dirName,
		RelativePath:  "a.jpg",
		Decision:      model.DecisionKeep,
	})
	if err != nil {
		t.Fatalf("не удалось сохранить решение: %v", err)
	}

	snap, serr := env.svc.OpenDirectory(context.Background(), root, nil)
	if serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	rec, _ := env.svc.Catalog().Get(0)
	if rec.Decision != model.DecisionKeep {
		t.Errorf("ожидалось слитое решение keep, получено %s", rec.Decision)
	}
	// Стартовый курсор — первая pending-запись, a.jpg уже решена
	if snap.CurrentIndex != 1 {
		t.Errorf("ожидался курсор 1, получено %d", snap.CurrentIndex)
	}
	if snap.Stats.Pending != 2 {
		t.Errorf("ожидалось 2 pending, получено %d", snap.Stats.Pending)
	}
}

func TestTriage_OpenDirectory_AllDecidedStartsInSummary(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg")
	dirName := filepath.Base(root)

	err := env.gw.SaveDecision(context.Background(), model.DecisionRecord{
		DirectoryName: dirName,
		RelativePath:  "a.jpg",
		Decision:      model.DecisionKeep,
	})
	if err != nil {
		t.Fatalf("не удалось сохранить решение: %v", err)
	}

	snap, serr := env.svc.OpenDirectory(context.Background(), root, nil)
	if serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	if snap.View != view.ViewSummary {
		t.Errorf("ожидалось представление summary, получено %s", snap.View)
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("ожидался курсор за последней записью, получено %d", snap.CurrentIndex)
	}
}

func TestTriage_DecideAdvancesToNextPending(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg", "c.jpg", "d.jpg")

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	// Готовим каталог [pending, delete, pending, keep] с курсором на 0
	if _, err := env.svc.Catalog().SetDecision(1, model.DecisionDelete); err != nil {
		t.Fatalf("не удалось подготовить каталог: %v", err)
	}
	if _, err := env.svc.Catalog().SetDecision(3, model.DecisionKeep); err != nil {
		t.Fatalf("не удалось подготовить каталог: %v", err)
	}

	snap, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep)
	if serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}

	// Следующая позиция — индекс 2 (первая pending после 0), не 1
	if snap.CurrentIndex != 2 {
		t.Errorf("ожидался курсор 2, получено %d", snap.CurrentIndex)
	}
}

func TestTriage_DecideWrapSearch(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg", "c.jpg")

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	if _, serr := env.svc.Decide(context.Background(), 1, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	snap, serr := env.svc.Decide(context.Background(), 2, model.DecisionKeep)
	if serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}

	// После хвоста каталога поиск pending продолжается с начала
	if snap.CurrentIndex != 0 {
		t.Errorf("ожидался курсор 0 после кругового поиска, получено %d", snap.CurrentIndex)
	}
	if snap.View != view.ViewCulling {
		t.Errorf("ожидалось представление culling, получено %s", snap.View)
	}
}

func TestTriage_DecideThenUndoIdentity(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg", "c.jpg")

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	before := env.svc.Snapshot()

	if _, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	after, serr := env.svc.Undo(context.Background())
	if serr != nil {
		t.Fatalf("не удалось отменить решение: %v", serr)
	}

	rec, _ := env.svc.Catalog().Get(0)
	if rec.Decision != model.DecisionPending {
		t.Errorf("ожидалось восстановление pending, получено %s", rec.Decision)
	}
	if after.CurrentIndex != 0 {
		t.Errorf("ожидался курсор 0 после отмены, получено %d", after.CurrentIndex)
	}
	if after.HistoryDepth != before.HistoryDepth {
		t.Errorf("ожидалась глубина истории %d, получено %d", before.HistoryDepth, after.HistoryDepth)
	}
	if after.Stats.Pending != before.Stats.Pending {
		t.Errorf("ожидалось %d pending, получено %d", before.Stats.Pending, after.Stats.Pending)
	}
}

func TestTriage_UndoEmptyHistoryNoop(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg")

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	before := env.svc.Snapshot()
	after, serr := env.svc.Undo(context.Background())
	if serr != nil {
		t.Fatalf("отмена при пустой истории должна быть no-op, получено %v", serr)
	}

	if after.CurrentIndex != before.CurrentIndex || after.View != before.View {
		t.Errorf("состояние изменилось при пустой истории: %+v → %+v", before, after)
	}
}

func TestTriage_CompletionTransition(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg")

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	if _, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	snap, serr := env.svc.Decide(context.Background(), 1, model.DecisionDelete)
	if serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}

	if snap.Stats.Progress != 100 {
		t.Errorf("ожидался прогресс 100, получено %d", snap.Stats.Progress)
	}
	if snap.View != view.ViewSummary {
		t.Errorf("ожидалось представление summary, получено %s", snap.View)
	}
	// Курсор равен длине каталога: разбор завершён
	if snap.CurrentIndex != 2 {
		t.Errorf("ожидался курсор 2, получено %d", snap.CurrentIndex)
	}
}

func TestTriage_UndoFromSummaryReturnsToCulling(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg")

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}
	if _, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.Decide(context.Background(), 1, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}

	snap, serr := env.svc.Undo(context.Background())
	if serr != nil {
		t.Fatalf("не удалось отменить решение: %v", serr)
	}

	if snap.View != view.ViewCulling {
		t.Errorf("ожидался возврат в culling, получено %s", snap.View)
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("ожидался курсор 1, получено %d", snap.CurrentIndex)
	}
}

func TestTriage_DecideValidation(t *testing.T) {
	env := newTestEnv(t)

	// Без открытой директории
	_, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep)
	if serr == nil || serr.StatusCode != 409 {
		t.Errorf("ожидался отказ 409 без открытой директории, получено %v", serr)
	}

	root := createImages(t, "a.jpg")
	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	// Индекс вне диапазона
	_, serr = env.svc.Decide(context.Background(), 5, model.DecisionKeep)
	if serr == nil || serr.StatusCode != 400 {
		t.Errorf("ожидался отказ 400 для индекса вне диапазона, получено %v", serr)
	}

	// pending не является решением
	_, serr = env.svc.Decide(context.Background(), 0, model.DecisionPending)
	if serr == nil || serr.StatusCode != 400 {
		t.Errorf("ожидался отказ 400 для решения pending, получено %v", serr)
	}
}

func TestTriage_ListenerNotifications(t *testing.T) {
	env := newTestEnv(t)
	listener := &recordingListener{}
	env.svc.SetListener(listener)

	root := createImages(t, "a.jpg", "b.jpg")
	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	listener.mu.Lock()
	replaced := listener.replaced
	listener.mu.Unlock()
	if replaced != 1 {
		t.Errorf("ожидалось одно уведомление о замене каталога, получено %d", replaced)
	}

	if _, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.navigates) != 1 || listener.navigates[0] != 1 {
		t.Errorf("ожидалось уведомление о курсоре 1, получено %v", listener.navigates)
	}
	if listener.views[0] != view.ViewCulling {
		t.Errorf("ожидалось представление culling, получено %s", listener.views[0])
	}
}

func TestTriage_CheckpointsPersistInOrder(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg")
	dirName := filepath.Base(root)

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	// Конкурирующие записи одного пути: итог определяется порядком
	if _, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.Undo(context.Background()); serr != nil {
		t.Fatalf("не удалось отменить решение: %v", serr)
	}
	if _, serr := env.svc.Decide(context.Background(), 0, model.DecisionDelete); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}

	// Stop дожидается записи всей очереди
	env.cp.Stop()

	decisions, err := env.gw.GetDecisionsForDirectory(context.Background(), dirName)
	if err != nil {
		t.Fatalf("не удалось прочитать решения: %v", err)
	}
	if decisions["a.jpg"] != model.DecisionDelete {
		t.Errorf("ожидалось итоговое решение delete, получено %s", decisions["a.jpg"])
	}

	session, err := env.gw.GetSession(context.Background(), dirName)
	if err != nil {
		t.Fatalf("не удалось прочитать сессию: %v", err)
	}
	if session.TotalImages != 2 {
		t.Errorf("ожидалось 2 изображения в сессии, получено %d", session.TotalImages)
	}
	if session.IsDone {
		t.Error("сессия не должна быть завершена: b.jpg ещё pending")
	}
	if session.LastIndex != 1 {
		t.Errorf("ожидался сохранённый курсор 1, получено %d", session.LastIndex)
	}
}

func TestTriage_ReDecideChangesDecision(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg")

	if _, serr := env.svc.OpenDirectory(context.Background(), root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	if _, serr := env.svc.Decide(context.Background(), 0, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	// Повторное решение по уже решённой записи перезаписывает его
	snap, serr := env.svc.Decide(context.Background(), 0, model.DecisionDelete)
	if serr != nil {
		t.Fatalf("не удалось изменить решение: %v", serr)
	}

	rec, _ := env.svc.Catalog().Get(0)
	if rec.Decision != model.DecisionDelete {
		t.Errorf("ожидалось решение delete, получено %s", rec.Decision)
	}
	if snap.HistoryDepth != 2 {
		t.Errorf("ожидалась глубина истории 2, получено %d", snap.HistoryDepth)
	}
}
