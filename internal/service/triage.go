// triage.go — движок последовательного разбора: открытие директории,
// решения, отмена, выбор следующей записи.
//
// TriageService — единственная точка мутации каталога. Локальные
// действия пользователя и намерения remote проходят через одни и те же
// Decide/Undo, поэтому у каталога ровно один писатель; мутации сеанса
// сериализуются мьютексом сервиса.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/domain/cursor"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/repository"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
	"github.com/bigkaa/gofotosort/internal/storage/scan"
)

// Prometheus метрики разбора.
var (
	// decisionsTotal — количество принятых решений по видам.
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_decisions_total",
		Help: "Общее количество принятых решений",
	}, []string{"decision"})

	// undoTotal — количество отмен решений.
	undoTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_undo_total",
		Help: "Общее количество отмен решений",
	})

	// catalogImages — размер открытого каталога.
	catalogImages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fs_catalog_images",
		Help: "Количество записей в открытом каталоге",
	})

	// catalogPending — записи каталога без решения.
	catalogPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fs_catalog_pending",
		Help: "Количество записей каталога без решения",
	})
)

// SessionListener получает уведомления об изменениях состояния сеанса.
// Реализуется хост-стороной пирингового соединения. Методы вызываются
// после завершения мутации и должны быстро возвращать управление.
type SessionListener interface {
	// OnNavigate — курсор или представление изменились.
	OnNavigate(v view.View, index int)
	// OnCatalogReplaced — каталог заменён структурно: открыта директория,
	// выполнено bulk-удаление или relink.
	OnCatalogReplaced()
}

// Snapshot — срез состояния сеанса для API и пира.
type Snapshot struct {
	DirectoryName string      `json:"directoryName"`
	View          view.View   `json:"view"`
	CurrentIndex  int         `json:"currentIndex"`
	Stats         model.Stats `json:"stats"`
	HistoryDepth  int         `json:"historyDepth"`
}

// TriageService — движок разбора изображений.
type TriageService struct {
	cfg     *config.Config
	cat     *catalog.Catalog
	cur     *cursor.Tracker
	vsm     *view.StateMachine
	scanner *scan.Scanner
	gw      repository.Gateway
	cp      *Checkpointer
	logger  *slog.Logger

	mu sync.Mutex // сериализация мутаций сеанса

	lmu      sync.RWMutex
	listener SessionListener
}

// NewTriageService создаёт движок разбора.
func NewTriageService(
	cfg *config.Config,
	cat *catalog.Catalog,
	cur *cursor.Tracker,
	vsm *view.StateMachine,
	scanner *scan.Scanner,
	gw repository.Gateway,
	cp *Checkpointer,
	logger *slog.Logger,
) *TriageService {
	return &TriageService{
		cfg:     cfg,
		cat:     cat,
		cur:     cur,
		vsm:     vsm,
		scanner: scanner,
		gw:      gw,
		cp:      cp,
		logger:  logger.With(slog.String("component", "triage")),
	}
}

// SetListener задаёт получателя уведомлений. nil отключает уведомления.
func (s *TriageService) SetListener(l SessionListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listener = l
}

// Catalog возвращает каталог сеанса.
func (s *TriageService) Catalog() *catalog.Catalog {
	return s.cat
}

// Snapshot возвращает срез текущего состояния сеанса.
func (s *TriageService) Snapshot() *Snapshot {
	return &Snapshot{
		DirectoryName: s.cat.DirectoryName(),
		View:          s.vsm.Current(),
		CurrentIndex:  s.cur.Current(),
		Stats:         s.cat.Stats(),
		HistoryDepth:  s.cur.HistoryLen(),
	}
}

// OpenDirectory сканирует директорию, сливает результат с сохранёнными
// решениями и запускает сеанс разбора. Стартовый курсор — первая
// pending-запись в порядке сканирования; если таких нет, сеанс
// начинается сразу со сводки.
func (s *TriageService) OpenDirectory(ctx context.Context, path string, onProgress scan.ProgressFunc) (*Snapshot, *ServiceError) {
	s.mu.Lock()
	snap, serr := s.openLocked(ctx, path, onProgress)
	s.mu.Unlock()

	if serr == nil {
		s.notifyCatalogReplaced()
	}
	return snap, serr
}

func (s *TriageService) openLocked(ctx context.Context, path string, onProgress scan.ProgressFunc) (*Snapshot, *ServiceError) {
	// 1. Проверяем путь
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Некорректный путь: %s", err.Error()),
		}
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Директория недоступна: %s", err.Error()),
		}
	}
	if !info.IsDir() {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Путь %q не является директорией", path),
		}
	}

	// 2. Сканируем и сливаем с сохранёнными решениями
	handle := model.DirHandle{Path: absPath}

	result, err := s.scanner.Scan(ctx, handle, onProgress)
	if err != nil {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Ошибка сканирования: %s", err.Error()),
		}
	}

	decisions, _ := s.gw.GetDecisionsForDirectory(ctx, result.RootName)

	if err := s.cat.Load(result.RootName, result.Records, decisions); err != nil {
		return nil, &ServiceError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    err.Error(),
		}
	}

	// 3. Стартовый курсор: первая pending-запись
	start := s.cat.FirstPending()
	s.cur.Reset(start)

	// 4. Представление: culling, если есть что разбирать, иначе summary
	target := view.ViewCulling
	if start >= s.cat.Len() {
		target = view.ViewSummary
	}
	if err := s.vsm.TransitionTo(target); err != nil {
		s.logger.Error("Ошибка перехода представления при открытии",
			slog.String("target", string(target)),
			slog.String("error", err.Error()),
		)
	}

	// 5. Сохраняем привязку директории; ранее выданное право на запись
	// для того же пути переживает переоткрытие
	if prev, err := s.gw.GetHandle(ctx, result.RootName); err == nil && prev.Path == absPath && prev.Writable {
		handle.Writable = true
	}
	_ = s.gw.StoreHandle(ctx, result.RootName, handle)

	// 6. Контрольная точка сеанса
	s.enqueueCheckpoint(nil)
	s.updateCatalogMetrics()

	snap := s.Snapshot()
	s.logger.Info("Директория открыта",
		slog.String("directory", result.RootName),
		slog.String("path", absPath),
		slog.Int("records", snap.Stats.Total),
		slog.Int("pending", snap.Stats.Pending),
		slog.String("view", string(snap.View)),
	)

	return snap, nil
}

// Decide применяет решение к записи каталога и сдвигает курсор на
// следующую actionable-запись: наименьший pending-индекс строго больше
// целевого; если таких нет, поиск с начала каталога; если pending не
// осталось, курсор равен длине каталога и сеанс переходит в сводку.
func (s *TriageService) Decide(ctx context.Context, index int, decision model.Decision) (*Snapshot, *ServiceError) {
	s.mu.Lock()
	snap, serr := s.decideLocked(ctx, index, decision)
	s.mu.Unlock()

	if serr == nil {
		s.notifyNavigate(snap.View, snap.CurrentIndex)
	}
	return snap, serr
}

func (s *TriageService) decideLocked(_ context.Context, index int, decision model.Decision) (*Snapshot, *ServiceError) {
	// 1. Сеанс должен быть открыт
	if !s.cat.IsReady() {
		return nil, &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeNoCatalog,
			Message:    "Директория не открыта",
		}
	}

	// 2. Проверяем допустимость операции в текущем представлении
	if !s.vsm.CanPerform(view.OpDecide) {
		return nil, &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeViewNotAllowed,
			Message:    fmt.Sprintf("Решения недоступны в представлении %s", s.vsm.Current()),
		}
	}

	// 3. Решением может быть только keep или delete; pending выставляет
	// отмена
	if decision != model.DecisionKeep && decision != model.DecisionDelete {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Недопустимое решение %q, допустимые: keep, delete", decision),
		}
	}

	// 4. Применяем решение
	rec, err := s.cat.SetDecision(index, decision)
	if err != nil {
		return nil, &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    err.Error(),
		}
	}

	// 5. История и следующая позиция
	s.cur.Push(index)
	s.cur.Set(s.cat.NextPending(index))

	// 6. Все решения приняты — переход в сводку
	if s.cat.AllDecided() {
		if err := s.vsm.TransitionTo(view.ViewSummary); err != nil {
			s.logger.Error("Ошибка перехода в сводку",
				slog.String("error", err.Error()),
			)
		}
	}

	// 7. Метрики и контрольная точка
	decisionsTotal.WithLabelValues(string(decision)).Inc()
	s.updateCatalogMetrics()
	s.enqueueCheckpoint(&model.DecisionRecord{
		DirectoryName: s.cat.DirectoryName(),
		RelativePath:  rec.RelativePath,
		Decision:      decision,
	})

	snap := s.Snapshot()
	s.logger.Debug("Решение принято",
		slog.Int("index", index),
		slog.String("decision", string(decision)),
		slog.String("relative_path", rec.RelativePath),
		slog.Int("next_index", snap.CurrentIndex),
	)

	return snap, nil
}

// Undo отменяет последнее решение: снимает индекс со стека истории,
// возвращает записи статус pending и ставит курсор на этот индекс.
// При пустой истории — молчаливый no-op.
func (s *TriageService) Undo(ctx context.Context) (*Snapshot, *ServiceError) {
	s.mu.Lock()
	snap, undone := s.undoLocked(ctx)
	s.mu.Unlock()

	if undone {
		s.notifyNavigate(snap.View, snap.CurrentIndex)
	}
	return snap, nil
}

func (s *TriageService) undoLocked(_ context.Context) (*Snapshot, bool) {
	index, ok := s.cur.Pop()
	if !ok {
		s.logger.Debug("Отмена при пустой истории, no-op")
		return s.Snapshot(), false
	}

	// Индексы истории валидны, пока каталог не менялся структурно:
	// bulk-удаление очищает историю
	rec, err := s.cat.SetDecision(index, model.DecisionPending)
	if err != nil {
		s.logger.Error("Индекс истории вне каталога, отмена пропущена",
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		return s.Snapshot(), false
	}

	s.cur.Set(index)

	// Появилась pending-запись: из сводки обратно в разбор
	if s.vsm.Current() == view.ViewSummary {
		if err := s.vsm.TransitionTo(view.ViewCulling); err != nil {
			s.logger.Error("Ошибка возврата в разбор",
				slog.String("error", err.Error()),
			)
		}
	}

	undoTotal.Inc()
	s.updateCatalogMetrics()
	s.enqueueCheckpoint(&model.DecisionRecord{
		DirectoryName: s.cat.DirectoryName(),
		RelativePath:  rec.RelativePath,
		Decision:      model.DecisionPending,
	})

	snap := s.Snapshot()
	s.logger.Debug("Решение отменено",
		slog.Int("index", index),
		slog.String("relative_path", rec.RelativePath),
	)

	return snap, true
}

// enqueueCheckpoint ставит в очередь контрольную точку с текущим
// снимком сессии и, если решение менялось, записью решения.
func (s *TriageService) enqueueCheckpoint(dec *model.DecisionRecord) {
	s.cp.Enqueue(Checkpoint{
		Session: &model.Session{
			DirectoryName: s.cat.DirectoryName(),
			LastIndex:     s.cur.Current(),
			TotalImages:   s.cat.Len(),
			UpdatedAt:     time.Now().UTC(),
			IsDone:        s.cat.AllDecided(),
		},
		Decision: dec,
	})
}

// updateCatalogMetrics обновляет gauge-метрики каталога.
func (s *TriageService) updateCatalogMetrics() {
	stats := s.cat.Stats()
	catalogImages.Set(float64(stats.Total))
	catalogPending.Set(float64(stats.Pending))
}

func (s *TriageService) notifyNavigate(v view.View, index int) {
	s.lmu.RLock()
	l := s.listener
	s.lmu.RUnlock()

	if l != nil {
		l.OnNavigate(v, index)
	}
}

func (s *TriageService) notifyCatalogReplaced() {
	s.lmu.RLock()
	l := s.listener
	s.lmu.RUnlock()

	if l != nil {
		l.OnCatalogReplaced()
	}
}
