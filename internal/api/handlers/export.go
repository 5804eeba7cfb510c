// export.go — HTTP handlers артефактов удаления: JSON-манифест и
// скрипты для windows/posix.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/service"
)

// ExportHandler — обработчик endpoints экспорта.
type ExportHandler struct {
	export *service.ExportService
}

// NewExportHandler создаёт обработчик экспорта.
func NewExportHandler(export *service.ExportService) *ExportHandler {
	return &ExportHandler{export: export}
}

// ExportManifest обрабатывает GET /api/v1/export.
// JSON-список записей с решением delete.
func (h *ExportHandler) ExportManifest(w http.ResponseWriter, _ *http.Request) {
	entries, serr := h.export.Manifest()
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ExportScript обрабатывает GET /api/v1/export/script?os=windows|posix.
// Отдаёт скрипт удаления как скачиваемый файл.
func (h *ExportHandler) ExportScript(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("os")
	if target == "" {
		apierrors.ValidationError(w, "Параметр 'os' обязателен, допустимые: windows, posix")
		return
	}

	script, serr := h.export.Script(target)
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}

	filename := "delete.sh"
	if target == service.ScriptWindows {
		filename = "delete.bat"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(script))
}
