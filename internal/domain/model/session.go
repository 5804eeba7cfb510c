package model

import (
	"time"
)

// Session — сохранённый прогресс разбора одной директории.
// Каталог целиком не персистируется: при повторном открытии директории
// он восстанавливается сканированием и слиянием с сохранёнными решениями.
type Session struct {
	// DirectoryName — долговременный идентификатор проекта (имя корня).
	// Меняется только операцией relink вместе со всеми решениями.
	DirectoryName string `json:"directory_name"`

	// LastIndex — последняя позиция курсора
	LastIndex int `json:"last_index"`

	// TotalImages — количество изображений на момент последнего чекпоинта
	TotalImages int `json:"total_images"`

	// UpdatedAt — время последнего чекпоинта (UTC)
	UpdatedAt time.Time `json:"updated_at"`

	// IsDone — все решения приняты
	IsDone bool `json:"is_done"`
}

// DecisionRecord — сохранённое решение по одному изображению.
// Ключ — пара (DirectoryName, RelativePath); запись не более одной
// на пару, сохранение работает как upsert.
type DecisionRecord struct {
	DirectoryName string   `json:"directory_name"`
	RelativePath  string   `json:"relative_path"`
	Decision      Decision `json:"decision"`
}

// DirHandle — локально сохранённая привязка директории: путь на диске
// и признак права на запись. Аналог выданного пользователем доступа
// к директории; никогда не передаётся remote.
type DirHandle struct {
	// Path — абсолютный путь к корню директории
	Path string `json:"path"`
	// Writable — разрешены ли операции записи (удаление файлов)
	Writable bool `json:"writable"`
}
