// checkpoint.go — асинхронная запись контрольных точек сеанса.
//
// Каждое успешное решение или отмена ставит в очередь контрольную
// точку: снимок сессии плюс upsert затронутого решения. Очередь
// разбирает одна фоновая горутина, поэтому контрольные точки одного
// каталога записываются строго в порядке постановки: запись для
// одной и той же пары (directory_name, relative_path) не обгоняет
// предыдущую.
//
// Постановка не блокирует вызывающего. Переполненная очередь
// сбрасывает точку с предупреждением в лог.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/repository"
)

// Prometheus метрики контрольных точек.
var (
	// checkpointsTotal — количество записанных контрольных точек.
	checkpointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_checkpoints_total",
		Help: "Общее количество записанных контрольных точек",
	})

	// checkpointDropsTotal — количество точек, сброшенных из-за
	// переполнения очереди.
	checkpointDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_checkpoint_drops_total",
		Help: "Общее количество контрольных точек, сброшенных при переполнении очереди",
	})
)

// checkpointTimeout — бюджет записи одной контрольной точки.
const checkpointTimeout = 5 * time.Second

// Checkpoint — единица работы очереди: снимок сессии и, если решение
// менялось, затронутая запись решения.
type Checkpoint struct {
	Session  *model.Session
	Decision *model.DecisionRecord

	// flushed — барьер Flush. Закрывается при достижении головы
	// очереди, запись в хранилище не выполняется.
	flushed chan struct{}
}

// Checkpointer — фоновая упорядоченная запись контрольных точек.
type Checkpointer struct {
	gw     repository.Gateway
	queue  chan Checkpoint
	done   chan struct{}
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool

	baseCtx context.Context
}

// NewCheckpointer создаёт очередь контрольных точек указанной глубины.
func NewCheckpointer(gw repository.Gateway, queueSize int, logger *slog.Logger) *Checkpointer {
	return &Checkpointer{
		gw:     gw,
		queue:  make(chan Checkpoint, queueSize),
		done:   make(chan struct{}),
		logger: logger.With(slog.String("component", "checkpointer")),
	}
}

// Start запускает фоновую горутину записи.
// Вызывается один раз при старте приложения.
func (c *Checkpointer) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.started = true
	c.mu.Unlock()

	go c.run()

	c.logger.Info("Запись контрольных точек запущена",
		slog.Int("queue_size", cap(c.queue)),
	)
}

// Stop закрывает очередь и дожидается записи оставшихся точек.
// После Stop постановка новых точек молча игнорируется.
func (c *Checkpointer) Stop() {
	c.mu.Lock()
	if c.closed || !c.started {
		c.closed = true
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	<-c.done
	c.logger.Info("Запись контрольных точек остановлена")
}

// Enqueue ставит контрольную точку в очередь без блокировки.
// Переполнение очереди сбрасывает точку: следующая мутация каталога
// поставит более свежий снимок сессии.
func (c *Checkpointer) Enqueue(cp Checkpoint) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.queue <- cp:
	default:
		checkpointDropsTotal.Inc()
		c.logger.Warn("Очередь контрольных точек переполнена, точка сброшена",
			slog.String("directory", cp.Session.DirectoryName),
		)
	}
}

// Flush блокирует до записи всех контрольных точек, поставленных в
// очередь до вызова. Применяется перед операциями, пишущими в хранилище
// напрямую (очистка, перепривязка), чтобы отложенные точки не
// перезаписали их результат.
func (c *Checkpointer) Flush() {
	c.mu.RLock()
	if c.closed || !c.started {
		c.mu.RUnlock()
		return
	}
	barrier := Checkpoint{flushed: make(chan struct{})}
	c.queue <- barrier
	c.mu.RUnlock()

	<-barrier.flushed
}

// run — основной цикл фоновой горутины: разбирает очередь до закрытия.
func (c *Checkpointer) run() {
	defer close(c.done)

	for cp := range c.queue {
		c.write(cp)
	}
}

// write записывает одну контрольную точку: сначала сессия, затем
// решение. Дальнейшая обработка ошибок лежит на шлюзе.
func (c *Checkpointer) write(cp Checkpoint) {
	if cp.flushed != nil {
		close(cp.flushed)
		return
	}

	c.mu.RLock()
	base := c.baseCtx
	c.mu.RUnlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, checkpointTimeout)
	defer cancel()

	if err := c.gw.SaveSession(ctx, cp.Session); err != nil {
		c.logger.Error("Ошибка записи сессии",
			slog.String("directory", cp.Session.DirectoryName),
			slog.String("error", err.Error()),
		)
	}

	if cp.Decision != nil {
		if err := c.gw.SaveDecision(ctx, *cp.Decision); err != nil {
			c.logger.Error("Ошибка записи решения",
				slog.String("directory", cp.Decision.DirectoryName),
				slog.String("relative_path", cp.Decision.RelativePath),
				slog.String("error", err.Error()),
			)
		}
	}

	checkpointsTotal.Inc()

	c.logger.Debug("Контрольная точка записана",
		slog.String("directory", cp.Session.DirectoryName),
	)
}
