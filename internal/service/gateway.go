// gateway.go — деградирующая обёртка над шлюзом персистентности.
//
// Политика отказов хранилища: любой сбой обычной операции чтения или
// записи логируется и превращается в «хранилище недоступно» — чтение
// возвращает пустой результат, запись становится no-op. Сеанс
// продолжается в памяти, ошибка никогда не доходит до пользователя
// как фатальная.
//
// Исключения: RelinkSession и Ping возвращают ошибки как есть.
// Relink — явная операция миграции, её сбой пользователь должен
// увидеть; Ping питает readiness probe, которой нужна правда.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/repository"
)

// gatewayDegradedTotal — количество деградировавших вызовов шлюза по операциям.
var gatewayDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fs_gateway_degraded_total",
	Help: "Общее количество вызовов шлюза персистентности, завершившихся деградацией",
}, []string{"op"})

// DegradedGateway — обёртка над repository.Gateway, реализующая
// политику «никогда не фатально».
type DegradedGateway struct {
	inner  repository.Gateway
	logger *slog.Logger
}

// NewDegradedGateway оборачивает шлюз персистентности.
func NewDegradedGateway(inner repository.Gateway, logger *slog.Logger) *DegradedGateway {
	return &DegradedGateway{
		inner:  inner,
		logger: logger.With(slog.String("component", "gateway")),
	}
}

// degrade логирует сбой и учитывает его в метриках.
func (g *DegradedGateway) degrade(op string, err error) {
	gatewayDegradedTotal.WithLabelValues(op).Inc()
	g.logger.Warn("Хранилище недоступно, операция деградировала",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// GetSession возвращает сессию. Сбой хранилища неотличим от
// отсутствия записи: возвращается ErrNotFound.
func (g *DegradedGateway) GetSession(ctx context.Context, directoryName string) (*model.Session, error) {
	s, err := g.inner.GetSession(ctx, directoryName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		g.degrade("get_session", err)
		return nil, repository.ErrNotFound
	}
	return s, nil
}

// SaveSession сохраняет сессию. Сбой превращается в no-op.
func (g *DegradedGateway) SaveSession(ctx context.Context, session *model.Session) error {
	if err := g.inner.SaveSession(ctx, session); err != nil {
		g.degrade("save_session", err)
	}
	return nil
}

// GetAllSessions возвращает все сессии. Сбой превращается в пустой список.
func (g *DegradedGateway) GetAllSessions(ctx context.Context) ([]*model.Session, error) {
	sessions, err := g.inner.GetAllSessions(ctx)
	if err != nil {
		g.degrade("get_all_sessions", err)
		return nil, nil
	}
	return sessions, nil
}

// GetDecisionsForDirectory возвращает сохранённые решения.
// Сбой превращается в пустую карту: каталог соберётся со всеми pending.
func (g *DegradedGateway) GetDecisionsForDirectory(ctx context.Context, directoryName string) (map[string]model.Decision, error) {
	decisions, err := g.inner.GetDecisionsForDirectory(ctx, directoryName)
	if err != nil {
		g.degrade("get_decisions", err)
		return map[string]model.Decision{}, nil
	}
	return decisions, nil
}

// SaveDecision сохраняет решение. Сбой превращается в no-op.
func (g *DegradedGateway) SaveDecision(ctx context.Context, rec model.DecisionRecord) error {
	if err := g.inner.SaveDecision(ctx, rec); err != nil {
		g.degrade("save_decision", err)
	}
	return nil
}

// RelinkSession переносит сессию на новое имя. Ошибки возвращаются
// как есть: миграция не деградирует.
func (g *DegradedGateway) RelinkSession(ctx context.Context, oldName, newName string, onProgress repository.ProgressFunc) error {
	return g.inner.RelinkSession(ctx, oldName, newName, onProgress)
}

// StoreHandle сохраняет привязку директории. Сбой превращается в no-op:
// привязка останется только в памяти текущего процесса.
func (g *DegradedGateway) StoreHandle(ctx context.Context, directoryName string, handle model.DirHandle) error {
	if err := g.inner.StoreHandle(ctx, directoryName, handle); err != nil {
		g.degrade("store_handle", err)
	}
	return nil
}

// GetHandle возвращает привязку. Сбой хранилища неотличим от
// отсутствия привязки: ErrNotFound. Для cleanup это означает отказ
// в операции, что безопаснее ложного разрешения.
func (g *DegradedGateway) GetHandle(ctx context.Context, directoryName string) (*model.DirHandle, error) {
	h, err := g.inner.GetHandle(ctx, directoryName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		g.degrade("get_handle", err)
		return nil, repository.ErrNotFound
	}
	return h, nil
}

// DeleteHandle удаляет привязку. Сбой превращается в no-op.
func (g *DegradedGateway) DeleteHandle(ctx context.Context, directoryName string) error {
	if err := g.inner.DeleteHandle(ctx, directoryName); err != nil {
		g.degrade("delete_handle", err)
	}
	return nil
}

// Ping проверяет доступность хранилища без деградации.
func (g *DegradedGateway) Ping(ctx context.Context) error {
	return g.inner.Ping(ctx)
}

// Close освобождает ресурсы обёрнутого шлюза.
func (g *DegradedGateway) Close() error {
	return g.inner.Close()
}

var _ repository.Gateway = (*DegradedGateway)(nil)
