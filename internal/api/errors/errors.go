// Пакет errors — конструкторы стандартных ошибок HTTP API fotosort.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // имя пересекается со stdlib, пакет импортируется с алиасом apierrors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeViewNotAllowed    = "VIEW_NOT_ALLOWED"
	CodeNoCatalog         = "NO_CATALOG"
	CodeNotWritable       = "NOT_WRITABLE"
	CodePeerBusy          = "PEER_BUSY"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// ViewNotAllowed — 409 операция недоступна в текущем представлении.
func ViewNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeViewNotAllowed, message)
}

// NoCatalog — 409 операция требует открытой директории.
func NoCatalog(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeNoCatalog, message)
}

// NotWritable — 409 нет права на запись в директорию.
func NotWritable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeNotWritable, message)
}

// PeerBusy — 409 пиринговое соединение уже занято другим устройством.
func PeerBusy(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodePeerBusy, message)
}

// UnsupportedFormat — 415 формат файла не поддерживается для отображения.
func UnsupportedFormat(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnsupportedMediaType, CodeUnsupportedFormat, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
