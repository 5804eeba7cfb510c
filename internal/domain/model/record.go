// Пакет model — доменные модели fotosort.
// ImageRecord — единица каталога: один файл изображения с решением
// пользователя (оставить/удалить/не просмотрено).
package model

import (
	"fmt"
)

// Decision — решение по изображению.
type Decision string

const (
	// DecisionPending — решение ещё не принято
	DecisionPending Decision = "pending"
	// DecisionKeep — изображение остаётся
	DecisionKeep Decision = "keep"
	// DecisionDelete — изображение помечено на удаление
	DecisionDelete Decision = "delete"
)

// ParseDecision преобразует строку в Decision.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case string(DecisionPending):
		return DecisionPending, nil
	case string(DecisionKeep):
		return DecisionKeep, nil
	case string(DecisionDelete):
		return DecisionDelete, nil
	default:
		return "", fmt.Errorf("недопустимое решение %q, допустимые: pending, keep, delete", s)
	}
}

// ImageRecord — запись каталога об одном изображении.
// FileRef существует только на стороне host и никогда не сериализуется:
// remote работает исключительно с упрощённой копией (SimpleRecord).
type ImageRecord struct {
	// ID — идентификатор записи (UUID v4). Генерируется при сканировании,
	// стабилен в пределах жизни каталога в памяти; при пересканировании
	// генерируется заново и не используется как ключ персистентности.
	ID string `json:"id"`

	// Name — базовое имя файла
	Name string `json:"name"`

	// RelativePath — путь относительно корня сканирования, всегда через «/».
	// Долговременный ключ идентичности: решения хранятся по паре
	// (directory_name, relative_path), а не по ID.
	RelativePath string `json:"relative_path"`

	// FileRef — абсолютный путь к файлу на диске host.
	// Не сериализуется и не передаётся remote.
	FileRef string `json:"-"`

	// Decision — текущее решение по изображению
	Decision Decision `json:"decision"`
}

// SimpleRecord — упрощённая запись для передачи remote: без FileRef.
type SimpleRecord struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RelativePath string   `json:"relative_path"`
	Decision     Decision `json:"decision"`
}

// Simplify возвращает копию записи без файловой ссылки.
func (r *ImageRecord) Simplify() SimpleRecord {
	return SimpleRecord{
		ID:           r.ID,
		Name:         r.Name,
		RelativePath: r.RelativePath,
		Decision:     r.Decision,
	}
}

// Stats — производная статистика каталога.
type Stats struct {
	// Total — общее количество записей
	Total int `json:"total"`
	// Kept — количество решений keep
	Kept int `json:"kept"`
	// Deleted — количество решений delete
	Deleted int `json:"deleted"`
	// Pending — количество непросмотренных
	Pending int `json:"pending"`
	// Progress — процент просмотренного: (kept+deleted)*100/total
	Progress int `json:"progress"`
}
