// Пакет server — HTTP-сервер fotosort с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/gofotosort/internal/api/handlers"
	"github.com/bigkaa/gofotosort/internal/api/middleware"
	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/web"
)

// Handlers — набор обработчиков, монтируемых на роутер.
type Handlers struct {
	Triage   *handlers.TriageHandler
	Catalog  *handlers.CatalogHandler
	Export   *handlers.ExportHandler
	Sessions *handlers.SessionsHandler
	Health   *handlers.HealthHandler
	Peer     *handlers.PeerHandler
}

// Server — HTTP-сервер fotosort.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h *Handlers) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health и Prometheus
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// API
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/directory/open", h.Triage.OpenDirectory)
		r.Post("/directory/grant", h.Triage.GrantDirectory)
		r.Get("/state", h.Triage.GetState)
		r.Post("/decide", h.Triage.Decide)
		r.Post("/undo", h.Triage.Undo)
		r.Post("/cleanup", h.Triage.Cleanup)
		r.Post("/relink", h.Triage.Relink)

		r.Get("/catalog", h.Catalog.ListCatalog)
		r.Get("/catalog/{index}/content", h.Catalog.GetContent)
		r.Get("/catalog/{index}/caption", h.Catalog.GetCaption)

		r.Get("/export", h.Export.ExportManifest)
		r.Get("/export/script", h.Export.ExportScript)

		r.Get("/sessions", h.Sessions.ListSessions)

		r.Get("/peer/join", h.Peer.Join)
		r.Get("/peer/ws", h.Peer.ServeWS)
	})

	// Страница присоединения remote-пира со встроенной статики
	router.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// из конфигурации.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown: активный websocket-пир закрывается отдельно в main,
	// Shutdown ждёт только обычные HTTP-запросы.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
