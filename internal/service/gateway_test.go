package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/domain/cursor"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/repository"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
	"github.com/bigkaa/gofotosort/internal/storage/scan"
)

// failGateway возвращает заданную ошибку из каждого метода хранилища.
type failGateway struct {
	err error
}

func (g *failGateway) GetSession(context.Context, string) (*model.Session, error) {
	return nil, g.err
}

func (g *failGateway) SaveSession(context.Context, *model.Session) error { return g.err }

func (g *failGateway) GetAllSessions(context.Context) ([]*model.Session, error) {
	return nil, g.err
}

func (g *failGateway) GetDecisionsForDirectory(context.Context, string) (map[string]model.Decision, error) {
	return nil, g.err
}

func (g *failGateway) SaveDecision(context.Context, model.DecisionRecord) error { return g.err }

func (g *failGateway) RelinkSession(context.Context, string, string, repository.ProgressFunc) error {
	return g.err
}

func (g *failGateway) StoreHandle(context.Context, string, model.DirHandle) error { return g.err }

func (g *failGateway) GetHandle(context.Context, string) (*model.DirHandle, error) {
	return nil, g.err
}

func (g *failGateway) DeleteHandle(context.Context, string) error { return g.err }

func (g *failGateway) Ping(context.Context) error { return g.err }

func (g *failGateway) Close() error { return nil }

var errStorageDown = errors.New("хранилище недоступно")

func TestDegradedGateway_ReadsDegrade(t *testing.T) {
	gw := NewDegradedGateway(&failGateway{err: errStorageDown}, testLogger())
	ctx := context.Background()

	// Сбой чтения сводится к «записи нет», исходная ошибка не течёт выше
	if _, err := gw.GetSession(ctx, "dir"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
	if _, err := gw.GetHandle(ctx, "dir"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}

	sessions, err := gw.GetAllSessions(ctx)
	if err != nil || sessions != nil {
		t.Errorf("ожидался пустой список без ошибки, получено %v, %v", sessions, err)
	}

	decisions, err := gw.GetDecisionsForDirectory(ctx, "dir")
	if err != nil {
		t.Errorf("ожидалась пустая карта без ошибки, получено %v", err)
	}
	if len(decisions) != 0 {
		t.Errorf("ожидалась пустая карта, получено %d записей", len(decisions))
	}
}

func TestDegradedGateway_WritesNoop(t *testing.T) {
	gw := NewDegradedGateway(&failGateway{err: errStorageDown}, testLogger())
	ctx := context.Background()

	if err := gw.SaveSession(ctx, &model.Session{DirectoryName: "dir"}); err != nil {
		t.Errorf("запись должна деградировать в no-op, получено %v", err)
	}
	if err := gw.SaveDecision(ctx, model.DecisionRecord{DirectoryName: "dir"}); err != nil {
		t.Errorf("запись должна деградировать в no-op, получено %v", err)
	}
	if err := gw.StoreHandle(ctx, "dir", model.DirHandle{}); err != nil {
		t.Errorf("запись должна деградировать в no-op, получено %v", err)
	}
	if err := gw.DeleteHandle(ctx, "dir"); err != nil {
		t.Errorf("запись должна деградировать в no-op, получено %v", err)
	}
}

func TestDegradedGateway_NotFoundPassthrough(t *testing.T) {
	gw := NewDegradedGateway(&failGateway{err: repository.ErrNotFound}, testLogger())

	// Штатное отсутствие записи не является деградацией
	if _, err := gw.GetSession(context.Background(), "dir"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

func TestDegradedGateway_RelinkAndPingPassthrough(t *testing.T) {
	gw := NewDegradedGateway(&failGateway{err: errStorageDown}, testLogger())
	ctx := context.Background()

	// Миграция и readiness не маскируются: сбой должен быть виден
	if err := gw.RelinkSession(ctx, "old", "new", nil); !errors.Is(err, errStorageDown) {
		t.Errorf("ожидалась исходная ошибка, получено %v", err)
	}
	if err := gw.Ping(ctx); !errors.Is(err, errStorageDown) {
		t.Errorf("ожидалась исходная ошибка, получено %v", err)
	}
}

func TestTriage_SurvivesGatewayFailure(t *testing.T) {
	logger := testLogger()
	gw := NewDegradedGateway(&failGateway{err: errStorageDown}, logger)
	cp := NewCheckpointer(gw, 16, logger)
	cp.Start(context.Background())
	t.Cleanup(cp.Stop)

	cfg := &config.Config{AllowDelete: true, ScanWorkers: 4}
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

	root := createImages(t, "a.jpg", "b.jpg")
	ctx := context.Background()

	// Разбор продолжается в памяти при недоступном хранилище
	snap, serr := svc.OpenDirectory(ctx, root, nil)
	if serr != nil {
		t.Fatalf("открытие должно переживать сбой хранилища: %v", serr)
	}
	if snap.Stats.Total != 2 {
		t.Errorf("ожидалось 2 записи, получено %d", snap.Stats.Total)
	}

	snap, serr = svc.Decide(ctx, 0, model.DecisionKeep)
	if serr != nil {
		t.Fatalf("решение должно переживать сбой хранилища: %v", serr)
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("ожидался курсор 1, получено %d", snap.CurrentIndex)
	}
}
