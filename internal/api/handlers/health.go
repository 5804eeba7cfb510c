// health.go — обработчики health endpoints.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/repository"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dataDir — путь к директории данных (для проверки FS)
	dataDir string
	// gw — хранилище (для проверки доступности)
	gw repository.Gateway
	// cat — каталог сеанса (информационно: открыт или нет)
	cat *catalog.Catalog
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(dataDir string, gw repository.Gateway, cat *catalog.Catalog) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		dataDir: dataDir,
		gw:      gw,
		cat:     cat,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "fotosort",
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет директорию данных и хранилище. Состояние каталога
// отражается информационно: пустой сеанс не мешает готовности.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	dbCheck := h.checkDatabase(r)
	if dbCheck["status"] != "ok" {
		// Хранилище деградирует, но сеанс работает: degraded, не fail
		if overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	catalogCheck := map[string]any{
		"status": "ok",
	}
	if h.cat != nil && h.cat.IsReady() {
		catalogCheck["directory_name"] = h.cat.DirectoryName()
	} else {
		catalogCheck["message"] = "Сеанс не открыт"
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "fotosort",
		"checks": map[string]any{
			"filesystem": fsCheck,
			"database":   dbCheck,
			"catalog":    catalogCheck,
		},
	}

	writeJSON(w, httpStatus, resp)
}

// checkFilesystem проверяет доступность директории данных на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.dataDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория данных недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// checkDatabase проверяет доступность хранилища решений.
func (h *HealthHandler) checkDatabase(r *http.Request) map[string]any {
	if h.gw == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	if err := h.gw.Ping(r.Context()); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Хранилище недоступно: " + err.Error(),
		}
	}

	return map[string]any{
		"status": "ok",
	}
}
