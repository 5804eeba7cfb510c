// peer.go — HTTP handlers пирингового подключения remote.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/peer"
)

// PeerHandler — обработчик endpoints подключения remote.
type PeerHandler struct {
	host   *peer.Host
	logger *slog.Logger
}

// NewPeerHandler создаёт обработчик пиринговых endpoints.
func NewPeerHandler(host *peer.Host, logger *slog.Logger) *PeerHandler {
	return &PeerHandler{
		host:   host,
		logger: logger.With(slog.String("component", "api_peer")),
	}
}

type joinResponse struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	Connected bool   `json:"connected"`
}

// Join обрабатывает GET /api/v1/peer/join.
// Выпускает токен присоединения и собирает ссылку подключения.
func (h *PeerHandler) Join(w http.ResponseWriter, _ *http.Request) {
	info, err := h.host.JoinInfo()
	if err != nil {
		h.logger.Error("Ошибка выпуска токена присоединения",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка выпуска токена присоединения")
		return
	}

	writeJSON(w, http.StatusOK, joinResponse{
		URL:       info.URL,
		Token:     info.Token,
		Connected: h.host.Connected(),
	})
}

// ServeWS обрабатывает GET /api/v1/peer/ws.
// Апгрейд на websocket делегируется host-стороне протокола.
func (h *PeerHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.host.ServeWS(w, r)
}
