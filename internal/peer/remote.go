// remote.go — remote-сторона пирингового соединения.
//
// Remote держит пассивное зеркало сеанса host: упрощённый каталог,
// позицию, вид и статистику. Зеркало меняется только сообщениями
// host; собственные действия remote уходят как намерения DECISION и
// UNDO и применяются к зеркалу лишь после ответа host.
package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
)

// Remote — клиентская сторона протокола синхронизации.
type Remote struct {
	conn   *websocket.Conn
	logger *slog.Logger

	// writeMu сериализует записи в сокет
	writeMu sync.Mutex

	// mu защищает зеркало сеанса
	mu      sync.RWMutex
	synced  bool
	dirName string
	records []model.SimpleRecord
	images  map[int]*ImageDataPayload
	cursor  int
	view    view.View
	stats   model.Stats
	saving  bool

	done      chan struct{}
	closeOnce sync.Once

	errMu   sync.Mutex
	lastErr error
}

// Dial подключается к host и запускает цикл чтения. Ссылка url —
// из JoinInfo host, с токеном присоединения в строке запроса.
func Dial(ctx context.Context, rawURL string, logger *slog.Logger) (*Remote, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("рукопожатие отклонено (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("подключение к host: %w", err)
	}

	r := &Remote{
		conn:   conn,
		logger: logger.With(slog.String("component", "peer_remote")),
		images: make(map[int]*ImageDataPayload),
		view:   view.ViewIdle,
		done:   make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

// Done закрывается после завершения цикла чтения.
func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// Err возвращает ошибку, завершившую цикл чтения, если была.
func (r *Remote) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

func (r *Remote) setErr(err error) {
	r.errMu.Lock()
	if r.lastErr == nil {
		r.lastErr = err
	}
	r.errMu.Unlock()
}

// Close завершает соединение. Идемпотентен.
func (r *Remote) Close() {
	r.closeOnce.Do(func() {
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = r.conn.Close()
	})
}

// readLoop применяет сообщения host к зеркалу до разрыва соединения.
func (r *Remote) readLoop() {
	defer func() {
		_ = r.conn.Close()
		close(r.done)
	}()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.setErr(err)
				r.logger.Warn("Соединение с host прервано",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		msgType, payload, err := Decode(data)
		if err != nil {
			r.setErr(err)
			r.logger.Error("Нарушение протокола, соединение закрывается",
				slog.String("error", err.Error()),
			)
			return
		}
		peerMessagesTotal.WithLabelValues(string(msgType), "in").Inc()

		if err := r.apply(msgType, payload); err != nil {
			r.setErr(err)
			r.logger.Error("Нарушение протокола, соединение закрывается",
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// apply применяет одно сообщение host к зеркалу. Намерения remote,
// пришедшие обратно, являются нарушением протокола.
func (r *Remote) apply(msgType MessageType, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch msgType {
	case TypeInitSync:
		p := payload.(*InitSyncPayload)
		r.synced = true
		r.dirName = p.DirectoryName
		r.records = p.Records
		r.cursor = p.CurrentIndex
		r.view = p.View
		r.stats = p.Stats
		// Индексы нового каталога не сопоставимы со старыми
		r.images = make(map[int]*ImageDataPayload)
		r.saving = false

	case TypeImageData:
		p := payload.(*ImageDataPayload)
		r.images[p.Index] = p

	case TypeDecisionAck:
		// Позиция приходит отдельным NAVIGATE
		r.saving = false

	case TypeNavigate:
		p := payload.(*NavigatePayload)
		r.view = p.View
		if p.Index != nil {
			r.cursor = *p.Index
		}
		r.saving = false

	case TypeDecision, TypeUndo:
		return &ProtocolError{
			Type:   msgType,
			Reason: "сообщение допустимо только в направлении remote → host",
		}

	default:
		return &ProtocolError{Type: msgType, Reason: "неизвестный тип сообщения"}
	}
	return nil
}

// SendDecision отправляет host намерение пометить изображение.
// Зеркало не меняется; поднимается только маркер сохранения.
func (r *Remote) SendDecision(index int, decision model.Decision) error {
	frame, err := Encode(TypeDecision, &DecisionPayload{Index: index, Decision: decision})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.saving = true
	r.mu.Unlock()

	return r.write(TypeDecision, frame)
}

// SendUndo отправляет host намерение отменить последнее решение.
func (r *Remote) SendUndo() error {
	frame, err := Encode(TypeUndo, nil)
	if err != nil {
		return err
	}
	return r.write(TypeUndo, frame)
}

func (r *Remote) write(t MessageType, frame []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("отправка %s: %w", t, err)
	}
	peerMessagesTotal.WithLabelValues(string(t), "out").Inc()
	return nil
}

// Synced возвращает true после первого INIT_SYNC.
func (r *Remote) Synced() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.synced
}

// DirectoryName возвращает имя директории сеанса host.
func (r *Remote) DirectoryName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirName
}

// Len возвращает размер зеркального каталога.
func (r *Remote) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Record возвращает зеркальную запись по индексу.
func (r *Remote) Record(index int) (model.SimpleRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.records) {
		return model.SimpleRecord{}, false
	}
	return r.records[index], true
}

// Image возвращает полученную полезную нагрузку изображения.
func (r *Remote) Image(index int) (*ImageDataPayload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.images[index]
	return p, ok
}

// Cursor возвращает зеркальную позицию host.
func (r *Remote) Cursor() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursor
}

// View возвращает зеркальный вид host.
func (r *Remote) View() view.View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// Stats возвращает зеркальную статистику сеанса.
func (r *Remote) Stats() model.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Saving возвращает true между отправкой DECISION и ответом host.
func (r *Remote) Saving() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saving
}
