// Пакет server — HTTP-сервер с маршрутизацией и graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на reverse proxy.
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

	apihandlers "github.com/arturkryukov/paperbank/internal/api/handlers"
	apimiddleware "github.com/arturkryukov/paperbank/internal/api/middleware"
	"github.com/arturkryukov/paperbank/internal/config"
	uihandlers "github.com/arturkryukov/paperbank/internal/ui/handlers"
	uimiddleware "github.com/arturkryukov/paperbank/internal/ui/middleware"
	"github.com/arturkryukov/paperbank/internal/ui/static"
)

// Handlers — обработчики, монтируемые сервером.
type Handlers struct {
	Catalog   *uihandlers.CatalogHandler
	Auth      *uihandlers.AuthHandler
	Dashboard *uihandlers.DashboardHandler
	Health    *apihandlers.HealthHandler
	// UIAuth — middleware грубой проверки UI-сессии для /admin/*.
	UIAuth *uimiddleware.UIAuth
}

// Server — HTTP-сервер приложения.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(apimiddleware.MetricsMiddleware())
	router.Use(apimiddleware.RequestLogger(logger))

	// Публичная часть: каталог и скачивание
	router.Get("/", h.Catalog.HandleIndex)
	router.Get("/download/{id}", h.Catalog.HandleDownload)

	// Админ-панель
	router.Route("/admin", func(r chi.Router) {
		// Вход/выход — без UIAuth middleware: login доступен анонимно,
		// logout должен работать и с истёкшей сессией
		r.Get("/login", h.Auth.HandleLoginPage)
		r.Post("/login/email", h.Auth.HandleSubmitEmail)
		r.Post("/login/code", h.Auth.HandleSubmitCode)
		r.Post("/login/back", h.Auth.HandleBack)
		r.Post("/logout", h.Auth.HandleLogout)

		// Защищённая часть
		r.Group(func(r chi.Router) {
			r.Use(h.UIAuth.Middleware())
			r.Get("/", h.Dashboard.HandleDashboard)
			r.Post("/records", h.Dashboard.HandleCreate)
			r.Post("/records/{id}", h.Dashboard.HandleUpdate)
			r.Post("/records/{id}/delete", h.Dashboard.HandleDelete)
		})
	})

	// Служебные endpoints
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)

	// Статические ресурсы (CSS)
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
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
// При получении сигнала выполняется graceful shutdown.
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

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
