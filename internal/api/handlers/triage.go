// triage.go — HTTP handlers операций сеанса разбора.
// Открытие директории, решения, отмена, очистка, перепривязка.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/service"
)

// TriageHandler — обработчик endpoints сеанса разбора.
type TriageHandler struct {
	svc    *service.TriageService
	logger *slog.Logger
}

// NewTriageHandler создаёт обработчик сеанса разбора.
func NewTriageHandler(svc *service.TriageService, logger *slog.Logger) *TriageHandler {
	return &TriageHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "api_triage")),
	}
}

type openDirectoryRequest struct {
	Path string `json:"path"`
}

// OpenDirectory обрабатывает POST /api/v1/directory/open.
// Сканирует директорию, сливает решения из хранилища и начинает сеанс.
func (h *TriageHandler) OpenDirectory(w http.ResponseWriter, r *http.Request) {
	var req openDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		apierrors.ValidationError(w, "Поле 'path' обязательно")
		return
	}

	snap, serr := h.svc.OpenDirectory(r.Context(), req.Path, nil)
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type grantDirectoryRequest struct {
	Path string `json:"path"`
}

// GrantDirectory обрабатывает POST /api/v1/directory/grant.
// Проверяет директорию пробной записью и сохраняет writable-привязку.
func (h *TriageHandler) GrantDirectory(w http.ResponseWriter, r *http.Request) {
	var req grantDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		apierrors.ValidationError(w, "Поле 'path' обязательно")
		return
	}

	result, serr := h.svc.GrantWritable(r.Context(), req.Path)
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetState обрабатывает GET /api/v1/state.
// Снимок сеанса: директория, представление, курсор, статистика.
func (h *TriageHandler) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

type decideRequest struct {
	// Index — указатель: индекс 0 валиден и обязан отличаться
	// от отсутствующего поля
	Index    *int           `json:"index"`
	Decision model.Decision `json:"decision"`
}

// Decide обрабатывает POST /api/v1/decide.
func (h *TriageHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}
	if req.Index == nil {
		apierrors.ValidationError(w, "Поле 'index' обязательно")
		return
	}

	snap, serr := h.svc.Decide(r.Context(), *req.Index, req.Decision)
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Undo обрабатывает POST /api/v1/undo.
// Пустая история — no-op с текущим снимком.
func (h *TriageHandler) Undo(w http.ResponseWriter, r *http.Request) {
	snap, serr := h.svc.Undo(r.Context())
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Cleanup обрабатывает POST /api/v1/cleanup.
// Физически удаляет файлы с решением delete и пересобирает каталог.
func (h *TriageHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, serr := h.svc.Cleanup(r.Context(), nil)
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type relinkRequest struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
	NewPath string `json:"newPath"`
}

// Relink обрабатывает POST /api/v1/relink.
// Переносит сессию и решения на новое имя директории.
func (h *TriageHandler) Relink(w http.ResponseWriter, r *http.Request) {
	var req relinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	result, serr := h.svc.Relink(r.Context(), req.OldName, req.NewName, req.NewPath, nil)
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
