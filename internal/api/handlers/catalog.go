// catalog.go — HTTP handlers каталога: список записей, содержимое
// изображений, описания нерендерируемых форматов.
package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/service"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
	"github.com/bigkaa/gofotosort/internal/storage/scan"
)

// CatalogHandler — обработчик endpoints каталога.
type CatalogHandler struct {
	cat     *catalog.Catalog
	caption *service.CaptionService
}

// NewCatalogHandler создаёт обработчик каталога.
func NewCatalogHandler(cat *catalog.Catalog, caption *service.CaptionService) *CatalogHandler {
	return &CatalogHandler{
		cat:     cat,
		caption: caption,
	}
}

type catalogResponse struct {
	DirectoryName string               `json:"directoryName"`
	Records       []model.SimpleRecord `json:"records"`
}

// ListCatalog обрабатывает GET /api/v1/catalog.
// Возвращает упрощённые записи без файловых ссылок.
func (h *CatalogHandler) ListCatalog(w http.ResponseWriter, _ *http.Request) {
	if !h.cat.IsReady() {
		apierrors.NoCatalog(w, "Директория не открыта")
		return
	}

	writeJSON(w, http.StatusOK, catalogResponse{
		DirectoryName: h.cat.DirectoryName(),
		Records:       h.cat.Simplified(),
	})
}

// indexParam извлекает позиционный индекс из пути запроса.
func indexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("некорректный индекс %q", raw)
	}
	return index, nil
}

// GetContent обрабатывает GET /api/v1/catalog/{index}/content.
// Отдаёт байты изображения для рендерируемых форматов; raw-форматы
// получают 415 и обслуживаются endpoint-ом описаний.
func (h *CatalogHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if !h.cat.IsReady() {
		apierrors.NoCatalog(w, "Директория не открыта")
		return
	}
	rec, ok := h.cat.Get(index)
	if !ok {
		apierrors.NotFound(w, fmt.Sprintf("Запись с индексом %d не найдена", index))
		return
	}

	if !scan.Renderable(rec.Name) {
		apierrors.UnsupportedFormat(w, fmt.Sprintf(
			"Формат %s не отображается браузером", filepath.Ext(rec.Name)))
		return
	}

	data, err := os.ReadFile(rec.FileRef)
	if err != nil {
		apierrors.NotFound(w, fmt.Sprintf("Файл недоступен: %s", err.Error()))
		return
	}

	// Индексы смещаются при очистке, кэшировать по ним нельзя
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", scan.ContentType(rec.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type captionResponse struct {
	Index     int    `json:"index"`
	Caption   string `json:"caption"`
	Generated bool   `json:"generated"`
}

// GetCaption обрабатывает GET /api/v1/catalog/{index}/caption.
// Текстовое описание записи; без настроенного Gemini — заглушка.
func (h *CatalogHandler) GetCaption(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	caption, serr := h.caption.Caption(r.Context(), index)
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}

	writeJSON(w, http.StatusOK, captionResponse{
		Index:     index,
		Caption:   caption,
		Generated: h.caption.Enabled(),
	})
}
