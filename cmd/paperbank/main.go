// Точка входа paperbank — каталог банков экзаменационных заданий.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует S3-хранилище и клиент OTP-сервиса, создаёт сервисный слой
// и обработчики, запускает фоновые задачи (сверка хранилища, topologymetrics),
// HTTP-сервер с graceful shutdown.
package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"

	apihandlers "github.com/arturkryukov/paperbank/internal/api/handlers"
	"github.com/arturkryukov/paperbank/internal/authclient"
	"github.com/arturkryukov/paperbank/internal/config"
	"github.com/arturkryukov/paperbank/internal/database"
	"github.com/arturkryukov/paperbank/internal/filestore"
	"github.com/arturkryukov/paperbank/internal/repository"
	"github.com/arturkryukov/paperbank/internal/server"
	"github.com/arturkryukov/paperbank/internal/service"
	"github.com/arturkryukov/paperbank/internal/ui/auth"
	uihandlers "github.com/arturkryukov/paperbank/internal/ui/handlers"
	uimiddleware "github.com/arturkryukov/paperbank/internal/ui/middleware"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Paperbank запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("PB_UI_SESSION_SECRET") == "" {
		logger.Warn("PB_UI_SESSION_SECRET не задан, UI-сессии не сохраняются между рестартами")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. S3-хранилище файлов
	store, err := filestore.New(cfg, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Error("Ошибка инициализации bucket", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Клиент OTP-сервиса
	otpClient := authclient.New(cfg.AuthURL, nil, logger)
	logger.Info("Клиент OTP-сервиса создан", slog.String("url", cfg.AuthURL))

	// 7. Repositories
	bankRepo := repository.NewQuestionBankRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)

	// 8. Services
	catalogSvc := service.NewCatalogService(bankRepo, logger)
	editorSvc := service.NewEditorService(bankRepo, uploadViaStore(store), logger)
	reconcileSvc := service.NewReconcileService(
		store, bankRepo,
		cfg.ReconcileInterval, cfg.ReconcileGrace, cfg.ReconcileDelete,
		logger,
	)

	// 9. Начальное наполнение снапшота каталога.
	// Ошибка не фатальна: каталог начнёт с пустого снапшота и догонит
	// при первой успешной операции записи.
	if err := catalogSvc.Refresh(ctx); err != nil {
		logger.Warn("Ошибка начальной загрузки каталога",
			slog.String("error", err.Error()),
		)
	}

	// 10. Session Manager — шифрование UI-сессий (AES-256-GCM).
	// Secure cookie, если OTP-сервис за https (значит и мы, скорее всего, тоже).
	secureCookie := strings.HasPrefix(cfg.AuthURL, "https")
	sessionMgr, err := auth.NewSessionManager(cfg.UISessionSecret, secureCookie)
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. UI handlers
	loginFlow := auth.NewLoginFlow(adminRepo, otpClient, logger)
	catalogHandler := uihandlers.NewCatalogHandler(catalogSvc, logger)
	authHandler := uihandlers.NewAuthHandler(loginFlow, sessionMgr, otpClient, logger)
	dashboardHandler := uihandlers.NewDashboardHandler(
		catalogSvc, editorSvc, adminRepo, otpClient, sessionMgr,
		cfg.MaxUploadSize,
		logger,
	)
	uiAuth := uimiddleware.NewUIAuth(sessionMgr, logger)

	// 12. Health handler (PostgreSQL + OTP-сервис + хранилище)
	healthHandler := apihandlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		otpClient,
		store,
	)

	// 13. Запуск фоновых задач
	reconcileSvc.Start(ctx)

	// 13.1 topologymetrics — мониторинг зависимостей (PostgreSQL + OTP-сервис)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"paperbank",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.AuthURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Handlers{
		Catalog:   catalogHandler,
		Auth:      authHandler,
		Dashboard: dashboardHandler,
		Health:    healthHandler,
		UIAuth:    uiAuth,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	reconcileSvc.Stop()

	logger.Info("Paperbank остановлен")
}

// uploadViaStore адаптирует filestore.Store.Upload (io.Reader + размер)
// к сигнатуре загрузчика EditorService (срез байт).
func uploadViaStore(store *filestore.Store) func(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	return func(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
		return store.Upload(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType)
	}
}
