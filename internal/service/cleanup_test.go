package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
)

// progressRecorder накапливает вызовы прогресса очистки.
type progressRecorder struct {
	calls [][2]int
}

func (r *progressRecorder) record(count, total int) {
	r.calls = append(r.calls, [2]int{count, total})
}

func TestTriage_Cleanup(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg", "c.jpg", "d.jpg")
	dirName := filepath.Base(root)
	ctx := context.Background()

	if _, serr := env.svc.OpenDirectory(ctx, root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}
	if _, serr := env.svc.Decide(ctx, 0, model.DecisionDelete); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.Decide(ctx, 1, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.Decide(ctx, 2, model.DecisionDelete); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.GrantWritable(ctx, root); serr != nil {
		t.Fatalf("не удалось получить право на запись: %v", serr)
	}

	// Пользователь вернулся к b.jpg: после очистки курсор должен
	// остаться на этой же записи
	env.svc.cur.Set(1)

	rec := &progressRecorder{}
	res, serr := env.svc.Cleanup(ctx, rec.record)
	if serr != nil {
		t.Fatalf("не удалось выполнить очистку: %v", serr)
	}

	if res.Removed != 2 || res.Failed != 0 || res.Total != 2 {
		t.Errorf("ожидалось removed=2 failed=0 total=2, получено %+v", res)
	}

	// Каталог сжался до переживших записей в исходном порядке
	if env.svc.Catalog().Len() != 2 {
		t.Fatalf("ожидалось 2 записи в каталоге, получено %d", env.svc.Catalog().Len())
	}
	first, _ := env.svc.Catalog().Get(0)
	second, _ := env.svc.Catalog().Get(1)
	if first.Name != "b.jpg" || second.Name != "d.jpg" {
		t.Errorf("ожидались записи b.jpg, d.jpg, получены %s, %s", first.Name, second.Name)
	}

	// Курсор следует за просматриваемой записью по её id
	if res.CurrentIndex != 0 {
		t.Errorf("ожидался курсор 0, получено %d", res.CurrentIndex)
	}
	if res.View != view.ViewCulling {
		t.Errorf("ожидалось представление culling, получено %s", res.View)
	}
	if depth := env.svc.Snapshot().HistoryDepth; depth != 0 {
		t.Errorf("ожидалась пустая история, получено %d", depth)
	}

	// Файлы удалены с диска, пережившие не тронуты
	for _, name := range []string{"a.jpg", "c.jpg"} {
		if _, err := os.Stat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Errorf("файл %s должен быть удалён", name)
		}
	}
	for _, name := range []string{"b.jpg", "d.jpg"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("файл %s должен остаться: %v", name, err)
		}
	}

	want := [][2]int{{1, 2}, {2, 2}}
	if len(rec.calls) != len(want) {
		t.Fatalf("ожидалось %d вызовов прогресса, получено %d", len(want), len(rec.calls))
	}
	for i, w := range want {
		if rec.calls[i] != w {
			t.Errorf("прогресс %d: ожидалось %v, получено %v", i, w, rec.calls[i])
		}
	}

	// Сохранённые решения удалённых путей сброшены в pending
	decisions, err := env.gw.GetDecisionsForDirectory(ctx, dirName)
	if err != nil {
		t.Fatalf("не удалось прочитать решения: %v", err)
	}
	if decisions["a.jpg"] != model.DecisionPending {
		t.Errorf("ожидался сброс a.jpg в pending, получено %s", decisions["a.jpg"])
	}
	if decisions["c.jpg"] != model.DecisionPending {
		t.Errorf("ожидался сброс c.jpg в pending, получено %s", decisions["c.jpg"])
	}
	if decisions["b.jpg"] != model.DecisionKeep {
		t.Errorf("решение b.jpg должно сохраниться, получено %s", decisions["b.jpg"])
	}
}

func TestTriage_Cleanup_RequiresWritableHandle(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg")
	ctx := context.Background()

	if _, serr := env.svc.OpenDirectory(ctx, root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}
	if _, serr := env.svc.Decide(ctx, 0, model.DecisionDelete); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}

	// Привязка после открытия без права на запись
	_, serr := env.svc.Cleanup(ctx, nil)
	if serr == nil || serr.StatusCode != 409 {
		t.Fatalf("ожидался отказ 409 без права на запись, получено %v", serr)
	}

	grant, serr := env.svc.GrantWritable(ctx, root)
	if serr != nil {
		t.Fatalf("не удалось получить право на запись: %v", serr)
	}
	if !grant.Writable {
		t.Error("ожидалась привязка с правом на запись")
	}

	res, serr := env.svc.Cleanup(ctx, nil)
	if serr != nil {
		t.Fatalf("не удалось выполнить очистку: %v", serr)
	}
	if res.Removed != 1 {
		t.Errorf("ожидалось 1 удаление, получено %d", res.Removed)
	}
}

func TestTriage_Cleanup_DeleteDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.AllowDelete = false
	root := createImages(t, "a.jpg")
	ctx := context.Background()

	if _, serr := env.svc.OpenDirectory(ctx, root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}

	_, serr := env.svc.Cleanup(ctx, nil)
	if serr == nil || serr.StatusCode != 403 {
		t.Errorf("ожидался отказ 403 при выключенном удалении, получено %v", serr)
	}
}

func TestTriage_Cleanup_ContinuesOnFailure(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg")
	ctx := context.Background()

	if _, serr := env.svc.OpenDirectory(ctx, root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}
	if _, serr := env.svc.Decide(ctx, 0, model.DecisionDelete); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.Decide(ctx, 1, model.DecisionDelete); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.GrantWritable(ctx, root); serr != nil {
		t.Fatalf("не удалось получить право на запись: %v", serr)
	}

	// a.jpg исчезает до очистки: её удаление провалится
	if err := os.Remove(filepath.Join(root, "a.jpg")); err != nil {
		t.Fatalf("не удалось подготовить сбой: %v", err)
	}

	rec := &progressRecorder{}
	res, serr := env.svc.Cleanup(ctx, rec.record)
	if serr != nil {
		t.Fatalf("очистка не должна прерываться на сбое файла: %v", serr)
	}

	if res.Removed != 1 || res.Failed != 1 || res.Total != 2 {
		t.Errorf("ожидалось removed=1 failed=1 total=2, получено %+v", res)
	}

	// Несработавшая запись остаётся в каталоге со своим решением
	if env.svc.Catalog().Len() != 1 {
		t.Fatalf("ожидалась 1 запись в каталоге, получено %d", env.svc.Catalog().Len())
	}
	left, _ := env.svc.Catalog().Get(0)
	if left.Name != "a.jpg" || left.Decision != model.DecisionDelete {
		t.Errorf("ожидалась запись a.jpg с решением delete, получено %s/%s", left.Name, left.Decision)
	}

	// Прогресс отражает каждую попытку, включая неудачную
	if len(rec.calls) != 2 {
		t.Errorf("ожидалось 2 вызова прогресса, получено %d", len(rec.calls))
	}
}

func TestTriage_Cleanup_NoTargets(t *testing.T) {
	env := newTestEnv(t)
	root := createImages(t, "a.jpg", "b.jpg")
	ctx := context.Background()

	if _, serr := env.svc.OpenDirectory(ctx, root, nil); serr != nil {
		t.Fatalf("не удалось открыть директорию: %v", serr)
	}
	if _, serr := env.svc.Decide(ctx, 0, model.DecisionKeep); serr != nil {
		t.Fatalf("не удалось принять решение: %v", serr)
	}
	if _, serr := env.svc.GrantWritable(ctx, root); serr != nil {
		t.Fatalf("не удалось получить право на запись: %v", serr)
	}

	rec := &progressRecorder{}
	res, serr := env.svc.Cleanup(ctx, rec.record)
	if serr != nil {
		t.Fatalf("не удалось выполнить очистку: %v", serr)
	}

	if res.Removed != 0 || res.Failed != 0 || res.Total != 0 {
		t.Errorf("ожидался пустой результат, получено %+v", res)
	}
	if res.CurrentIndex != 1 {
		t.Errorf("курсор не должен меняться, получено %d", res.CurrentIndex)
	}
	if len(rec.calls) != 0 {
		t.Errorf("прогресс не должен вызываться, получено %d вызовов", len(rec.calls))
	}
	// История отмен сохраняется: каталог не менялся структурно
	if depth := env.svc.Snapshot().HistoryDepth; depth != 1 {
		t.Errorf("ожидалась глубина истории 1, получено %d", depth)
	}
}

func TestTriage_GrantWritable_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, serr := env.svc.GrantWritable(ctx, "/nonexistent/fotosort-dir")
	if serr == nil || serr.StatusCode != 400 {
		t.Errorf("ожидался отказ 400 для несуществующего пути, получено %v", serr)
	}

	root := createImages(t, "a.jpg")
	_, serr = env.svc.GrantWritable(ctx, filepath.Join(root, "a.jpg"))
	if serr == nil || serr.StatusCode != 400 {
		t.Errorf("ожидался отказ 400 для пути на файл, получено %v", serr)
	}

	grant, serr := env.svc.GrantWritable(ctx, root)
	if serr != nil {
		t.Fatalf("не удалось получить право на запись: %v", serr)
	}
	if grant.DirectoryName != filepath.Base(root) {
		t.Errorf("ожидалось имя %q, получено %q", filepath.Base(root), grant.DirectoryName)
	}
	if grant.Path != root {
		t.Errorf("ожидался путь %q, получено %q", root, grant.Path)
	}
}
