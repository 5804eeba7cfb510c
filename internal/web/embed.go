// Пакет web — встроенная статика fotosort: страница присоединения
// remote. Файлы встраиваются в бинарник через go:embed и раздаются
// с корня HTTP-сервера.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var content embed.FS

// Handler возвращает обработчик встроенной статики.
// Корень сайта отдаёт static/index.html.
func Handler() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// Встроенная ФС фиксируется при компиляции
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
