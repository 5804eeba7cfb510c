// Пакет handlers — HTTP-обработчики API fotosort.
// Обработчики сгруппированы по областям: сеанс разбора, каталог,
// экспорт, сессии, health, peer. Регистрируются вручную на chi-роутере
// в пакете server.
package handlers

import (
	"encoding/json"
	"net/http"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
