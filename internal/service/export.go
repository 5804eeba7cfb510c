// export.go — экспорт результатов разбора: JSON-манифест и скрипты
// удаления для Windows и POSIX.
package service

import (
	"fmt"
	"log/slog"
	"strings"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
)

// ExportEntry — одна запись JSON-манифеста.
type ExportEntry struct {
	Filename      string         `json:"filename"`
	RelativePath  string         `json:"relativePath"`
	FullPathLabel string         `json:"fullPathLabel"`
	Decision      model.Decision `json:"decision"`
}

// Целевая платформа скрипта удаления.
const (
	ScriptWindows = "windows"
	ScriptPosix   = "posix"
)

// ExportService — экспорт каталога. Только чтение, каталог не мутирует.
type ExportService struct {
	cat    *catalog.Catalog
	vsm    *view.StateMachine
	logger *slog.Logger
}

// NewExportService создаёт сервис экспорта.
func NewExportService(cat *catalog.Catalog, vsm *view.StateMachine, logger *slog.Logger) *ExportService {
	return &ExportService{
		cat:    cat,
		vsm:    vsm,
		logger: logger.With(slog.String("component", "export")),
	}
}

// guard проверяет, что экспортировать есть что и операция допустима.
func (s *ExportService) guard() *ServiceError {
	if !s.cat.IsReady() {
		return &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeNoCatalog,
			Message:    "Директория не открыта",
		}
	}
	if !s.vsm.CanPerform(view.OpExport) {
		return &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeViewNotAllowed,
			Message:    fmt.Sprintf("Экспорт недоступен в представлении %s", s.vsm.Current()),
		}
	}
	return nil
}

// Manifest возвращает JSON-манифест: по одной записи на каждую запись
// каталога в порядке сканирования. fullPathLabel — имя директории,
// соединённое с relativePath через "/".
func (s *ExportService) Manifest() ([]ExportEntry, *ServiceError) {
	if serr := s.guard(); serr != nil {
		return nil, serr
	}

	dirName := s.cat.DirectoryName()
	records := s.cat.Records()

	entries := make([]ExportEntry, len(records))
	for i, rec := range records {
		entries[i] = ExportEntry{
			Filename:      rec.Name,
			RelativePath:  rec.RelativePath,
			FullPathLabel: dirName + "/" + rec.RelativePath,
			Decision:      rec.Decision,
		}
	}

	s.logger.Debug("Манифест экспортирован",
		slog.String("directory", dirName),
		slog.Int("entries", len(entries)),
	)

	return entries, nil
}

// Script возвращает скрипт удаления для указанной платформы: одна
// команда на каждую запись с решением delete. Windows-вариант
// использует разделитель "\" и CRLF, POSIX-вариант "/" и LF.
func (s *ExportService) Script(target string) (string, *ServiceError) {
	if serr := s.guard(); serr != nil {
		return "", serr
	}

	switch target {
	case ScriptWindows, ScriptPosix:
	default:
		return "", &ServiceError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Недопустимая платформа %q, допустимые: windows, posix", target),
		}
	}

	dirName := s.cat.DirectoryName()

	var lines []string
	for _, rec := range s.cat.Records() {
		if rec.Decision != model.DecisionDelete {
			continue
		}
		fullPath := dirName + "/" + rec.RelativePath
		if target == ScriptWindows {
			lines = append(lines, `del "`+strings.ReplaceAll(fullPath, "/", `\`)+`"`)
		} else {
			lines = append(lines, "rm -- "+shQuote(fullPath))
		}
	}

	var sb strings.Builder
	if target == ScriptWindows {
		sb.WriteString("@echo off\r\n")
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteString("\r\n")
		}
	} else {
		sb.WriteString("#!/bin/sh\n")
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	s.logger.Debug("Скрипт удаления экспортирован",
		slog.String("directory", dirName),
		slog.String("target", target),
		slog.Int("commands", len(lines)),
	)

	return sb.String(), nil
}

// shQuote экранирует путь для POSIX shell одиночными кавычками.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
