// host.go — хост-сторона пирингового соединения.
//
// Host принимает не более одного remote. Слот резервируется до
// апгрейда: попытка второго подключения при активной связи отклоняется
// с 409. Запись в сокет идёт только из насоса записи; все остальные
// горутины кладут кадры в буферизованный канал отправки.
package peer

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/service"
)

const (
	// writeWait — бюджет одной записи в сокет
	writeWait = 10 * time.Second
	// pongWait — максимум тишины от remote до разрыва
	pongWait = 60 * time.Second
	// pingPeriod — период ping; меньше pongWait
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize — remote отправляет только намерения
	maxMessageSize = 1 << 20
	// sendBuffer — глубина канала отправки
	sendBuffer = 32
)

// Host — хост-сторона протокола синхронизации. Реализует
// service.SessionListener: мутации сеанса транслируются подключённому
// remote как NAVIGATE и окна IMAGE_DATA.
type Host struct {
	svc       *service.TriageService
	pf        *Prefetcher
	issuer    *TokenIssuer
	publicURL string
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	// mu защищает слот единственного соединения
	mu      sync.Mutex
	current *hostConn
}

// hostConn — одно принятое соединение remote.
type hostConn struct {
	conn *websocket.Conn
	link *Link
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// enqueue кладёт кадр в канал отправки без блокировки.
// Возвращает false, если соединение закрыто или буфер переполнен.
func (pc *hostConn) enqueue(frame []byte) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.closed {
		return false
	}
	select {
	case pc.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown закрывает канал отправки и переводит связь в closed.
// Идемпотентен: закрытие инициируют оба насоса и host.
func (pc *hostConn) shutdown() {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	pc.closed = true
	close(pc.send)
	pc.mu.Unlock()

	_ = pc.link.TransitionTo(LinkClosed)
}

// NewHost создаёт хост-сторону с prefetcher-ом поверх каталога сервиса.
func NewHost(cfg *config.Config, svc *service.TriageService, logger *slog.Logger) *Host {
	return &Host{
		svc:       svc,
		pf:        NewPrefetcher(svc.Catalog(), cfg.PrefetchDepth, cfg.PayloadCacheSize, cfg.PayloadCacheTTL, logger),
		issuer:    NewTokenIssuer(cfg.JWTSecret, cfg.JoinTokenTTL),
		publicURL: cfg.PublicURL,
		logger:    logger.With(slog.String("component", "peer_host")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// JoinInfo — данные для подключения remote.
type JoinInfo struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// JoinInfo выпускает токен присоединения и собирает ссылку подключения.
func (h *Host) JoinInfo() (*JoinInfo, error) {
	token, err := h.issuer.Issue()
	if err != nil {
		return nil, err
	}
	return &JoinInfo{
		URL:   h.publicURL + "/api/v1/peer/ws?token=" + url.QueryEscape(token),
		Token: token,
	}, nil
}

// Connected возвращает true, если remote подключён и связь открыта.
func (h *Host) Connected() bool {
	pc := h.peer()
	return pc != nil && pc.link.State() == LinkOpen
}

// ServeWS принимает подключение remote: проверяет токен, резервирует
// слот, выполняет апгрейд и запускает насосы чтения и записи.
func (h *Host) ServeWS(w http.ResponseWriter, r *http.Request) {
	// 1. Токен присоединения обязателен
	token := r.URL.Query().Get("token")
	if token == "" {
		apierrors.Unauthorized(w, "Отсутствует токен присоединения")
		return
	}
	if err := h.issuer.Verify(token); err != nil {
		h.logger.Debug("Токен присоединения отклонён",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		apierrors.Unauthorized(w, "Невалидный или просроченный токен присоединения")
		return
	}

	// 2. Слот единственного соединения резервируется до апгрейда
	h.mu.Lock()
	if h.current != nil {
		h.mu.Unlock()
		apierrors.PeerBusy(w, "Пир уже подключён")
		return
	}
	pc := &hostConn{
		link: NewLink(),
		send: make(chan []byte, sendBuffer),
	}
	h.current = pc
	h.mu.Unlock()

	// 3. Апгрейд; при ошибке ответ уже записан upgrader-ом
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Ошибка апгрейда пирингового соединения",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		h.release(pc)
		return
	}
	pc.conn = conn
	_ = pc.link.TransitionTo(LinkOpen)

	h.logger.Info("Пир подключён",
		slog.String("remote_addr", r.RemoteAddr),
	)

	go h.writePump(pc)
	go h.readPump(pc)

	// 4. Снимок состояния и первое окно изображений
	h.pf.ResetSession()
	h.sendInitSync(pc)
	h.pushWindow(pc, h.svc.Snapshot().CurrentIndex)
}

// release снимает соединение со слота и закрывает его.
func (h *Host) release(pc *hostConn) {
	pc.shutdown()

	h.mu.Lock()
	if h.current == pc {
		h.current = nil
	}
	h.mu.Unlock()
}

// Close закрывает активное соединение. Вызывается при остановке
// приложения.
func (h *Host) Close() {
	if pc := h.peer(); pc != nil {
		h.logger.Info("Пиринговое соединение закрывается")
		h.release(pc)
	}
}

func (h *Host) peer() *hostConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// readPump читает сообщения remote до разрыва или нарушения протокола.
func (h *Host) readPump(pc *hostConn) {
	defer h.release(pc)

	pc.conn.SetReadLimit(maxMessageSize)
	_ = pc.conn.SetReadDeadline(time.Now().Add(pongWait))
	pc.conn.SetPongHandler(func(string) error {
		return pc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("Пиринговое соединение прервано",
					slog.String("error", err.Error()),
				)
			} else {
				h.logger.Info("Пир отключился")
			}
			return
		}

		if err := h.handleMessage(pc, data); err != nil {
			h.logger.Error("Нарушение протокола, связь закрывается",
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// handleMessage обрабатывает одно входящее сообщение remote.
// Ненулевая ошибка означает нарушение протокола и разрыв связи;
// отклонённое сервисом намерение нарушением не является.
func (h *Host) handleMessage(pc *hostConn, data []byte) error {
	msgType, payload, err := Decode(data)
	if err != nil {
		return err
	}
	peerMessagesTotal.WithLabelValues(string(msgType), "in").Inc()

	switch msgType {
	case TypeDecision:
		p := payload.(*DecisionPayload)
		if _, serr := h.svc.Decide(context.Background(), p.Index, p.Decision); serr != nil {
			h.logger.Warn("Намерение remote отклонено",
				slog.Int("index", p.Index),
				slog.String("error", serr.Error()),
			)
			// Отклонённое намерение не подтверждается; авторитетный
			// NAVIGATE снимает у remote маркер сохранения и возвращает
			// его к позиции host
			h.sendPosition(pc)
			return nil
		}
		h.sendAck(pc, p.Index)
		return nil

	case TypeUndo:
		// Ответ придёт следующим NAVIGATE через слушателя сеанса
		_, _ = h.svc.Undo(context.Background())
		return nil

	case TypeInitSync, TypeImageData, TypeDecisionAck, TypeNavigate:
		return &ProtocolError{
			Type:   msgType,
			Reason: "сообщение допустимо только в направлении host → remote",
		}

	default:
		return &ProtocolError{Type: msgType, Reason: "неизвестный тип сообщения"}
	}
}

// writePump — единственный писатель сокета: кадры из канала отправки
// и периодические ping.
func (h *Host) writePump(pc *hostConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = pc.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-pc.send:
			_ = pc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = pc.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := pc.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = pc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := pc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver ставит кадр в очередь отправки. Переполненный буфер
// означает безнадёжно отставшего remote: связь закрывается.
func (h *Host) deliver(pc *hostConn, t MessageType, frame []byte) {
	if pc.enqueue(frame) {
		peerMessagesTotal.WithLabelValues(string(t), "out").Inc()
		return
	}
	h.logger.Warn("Буфер отправки переполнен, связь закрывается",
		slog.String("type", string(t)),
	)
	h.release(pc)
}

// sendInitSync отправляет полный снимок состояния сеанса.
func (h *Host) sendInitSync(pc *hostConn) {
	snap := h.svc.Snapshot()
	frame, err := Encode(TypeInitSync, &InitSyncPayload{
		DirectoryName: snap.DirectoryName,
		Records:       h.svc.Catalog().Simplified(),
		CurrentIndex:  snap.CurrentIndex,
		View:          snap.View,
		Stats:         snap.Stats,
	})
	if err != nil {
		h.logger.Error("Ошибка кодирования INIT_SYNC",
			slog.String("error", err.Error()),
		)
		return
	}
	h.deliver(pc, TypeInitSync, frame)
}

func (h *Host) sendAck(pc *hostConn, index int) {
	frame, err := Encode(TypeDecisionAck, &DecisionAckPayload{Index: index})
	if err != nil {
		h.logger.Error("Ошибка кодирования DECISION_ACK",
			slog.String("error", err.Error()),
		)
		return
	}
	h.deliver(pc, TypeDecisionAck, frame)
}

// sendPosition отправляет текущую авторитетную позицию host.
func (h *Host) sendPosition(pc *hostConn) {
	snap := h.svc.Snapshot()
	frame, err := Encode(TypeNavigate, &NavigatePayload{View: snap.View, Index: &snap.CurrentIndex})
	if err != nil {
		h.logger.Error("Ошибка кодирования NAVIGATE",
			slog.String("error", err.Error()),
		)
		return
	}
	h.deliver(pc, TypeNavigate, frame)
}

// pushWindow отправляет окно изображений вокруг индекса.
func (h *Host) pushWindow(pc *hostConn, current int) {
	for _, frame := range h.pf.Window(current) {
		h.deliver(pc, TypeImageData, frame)
	}
}

// OnNavigate транслирует remote новую позицию host.
func (h *Host) OnNavigate(v view.View, index int) {
	pc := h.peer()
	if pc == nil {
		return
	}

	frame, err := Encode(TypeNavigate, &NavigatePayload{View: v, Index: &index})
	if err != nil {
		h.logger.Error("Ошибка кодирования NAVIGATE",
			slog.String("error", err.Error()),
		)
		return
	}
	h.deliver(pc, TypeNavigate, frame)

	if v == view.ViewCulling {
		h.pushWindow(pc, index)
	}
}

// OnCatalogReplaced отправляет remote свежий снимок после структурной
// замены каталога (открытие директории, очистка, перепривязка).
func (h *Host) OnCatalogReplaced() {
	pc := h.peer()
	if pc == nil {
		return
	}

	h.pf.ResetSession()
	h.sendInitSync(pc)

	snap := h.svc.Snapshot()
	if snap.View == view.ViewCulling {
		h.pushWindow(pc, snap.CurrentIndex)
	}
}
