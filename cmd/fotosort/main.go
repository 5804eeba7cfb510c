// Точка входа fotosort — сервера разбора фотографий.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/gofotosort/internal/api/handlers"
	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/database"
	"github.com/bigkaa/gofotosort/internal/domain/cursor"
	"github.com/bigkaa/gofotosort/internal/domain/view"
	"github.com/bigkaa/gofotosort/internal/peer"
	"github.com/bigkaa/gofotosort/internal/repository"
	"github.com/bigkaa/gofotosort/internal/server"
	"github.com/bigkaa/gofotosort/internal/service"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
	"github.com/bigkaa/gofotosort/internal/storage/scan"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("fotosort запускается",
		slog.String("version", config.Version),
		slog.String("addr", cfg.ListenAddr),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("allow_delete", cfg.AllowDelete),
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Ошибка создания директории данных", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Инициализация компонентов ---

	ctx := context.Background()

	// 1. Шлюз хранилища: PostgreSQL при заданном DSN, иначе встроенная БД
	var raw repository.Gateway
	if cfg.DatabaseDSN != "" {
		if err := database.Migrate(cfg.DatabaseDSN, logger); err != nil {
			logger.Error("Ошибка применения миграций", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err := database.Connect(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		raw = repository.NewPostgresGateway(pool, logger)
	} else {
		bg, err := repository.NewBadgerGateway(filepath.Join(cfg.DataDir, "db"), logger)
		if err != nil {
			logger.Error("Ошибка открытия встроенной БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
		raw = bg
		logger.Info("Используется встроенная БД", slog.String("dir", filepath.Join(cfg.DataDir, "db")))
	}

	// Обёртка деградации: отказ хранилища не останавливает сеанс
	gw := service.NewDegradedGateway(raw, logger)
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Error("Ошибка закрытия хранилища", slog.String("error", err.Error()))
		}
	}()

	// 2. Асинхронные чекпоинты решений
	cp := service.NewCheckpointer(gw, cfg.CheckpointQueue, logger)
	cp.Start(ctx)
	defer cp.Stop()

	// 3. Состояние сеанса: каталог, курсор, представление, сканер
	cat := catalog.New(logger)
	cur := cursor.NewTracker()
	vsm := view.NewStateMachine()
	scanner := scan.New(cfg.ScanWorkers, logger)

	// 4. Сервисы
	svc := service.NewTriageService(cfg, cat, cur, vsm, scanner, gw, cp, logger)
	exportSvc := service.NewExportService(cat, vsm, logger)
	captionSvc := service.NewCaptionService(ctx, cfg, cat, logger)

	// 5. Хост peer-протокола: уведомления сеанса транслируются remote-пиру
	host := peer.NewHost(cfg, svc, logger)
	svc.SetListener(host)
	defer host.Close()

	// 6. Handlers
	h := &server.Handlers{
		Triage:   handlers.NewTriageHandler(svc, logger),
		Catalog:  handlers.NewCatalogHandler(cat, captionSvc),
		Export:   handlers.NewExportHandler(exportSvc),
		Sessions: handlers.NewSessionsHandler(gw, logger),
		Health:   handlers.NewHealthHandler(cfg.DataDir, gw, cat),
		Peer:     handlers.NewPeerHandler(host, logger),
	}

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Deferred-цепочка: закрытие peer-соединения, дренаж очереди
	// чекпоинтов, закрытие хранилища.
	logger.Info("fotosort остановлен")
}
