// sessions.go — HTTP handler списка сохранённых сессий.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/repository"
)

// SessionsHandler — обработчик endpoint сессий.
type SessionsHandler struct {
	gw     repository.Gateway
	logger *slog.Logger
}

// NewSessionsHandler создаёт обработчик сессий.
func NewSessionsHandler(gw repository.Gateway, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{
		gw:     gw,
		logger: logger.With(slog.String("component", "api_sessions")),
	}
}

// ListSessions обрабатывает GET /api/v1/sessions.
// Все сохранённые сессии из хранилища, включая завершённые.
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.gw.GetAllSessions(r.Context())
	if err != nil {
		h.logger.Error("Ошибка чтения сессий",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка чтения сохранённых сессий")
		return
	}
	if sessions == nil {
		// Пустой список сериализуется как [], не null
		sessions = []*model.Session{}
	}

	writeJSON(w, http.StatusOK, sessions)
}
