// Пакет config — загрузка и валидация конфигурации paperbank
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации paperbank.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- OTP auth-сервис ---

	// Базовый URL внешнего OTP-сервиса (например, https://auth.example.com)
	AuthURL string

	// --- Файловое хранилище (S3-совместимое) ---

	// Endpoint хранилища (host:port, без схемы)
	S3Endpoint string
	// Access key
	S3AccessKey string
	// Secret key
	S3SecretKey string
	// Использовать TLS при подключении к хранилищу
	S3UseSSL bool
	// Регион (для MakeBucket)
	S3Region string
	// Имя bucket с файлами каталога
	S3Bucket string
	// Базовый публичный URL хранилища (схема+хост). Если пуст — строится
	// из S3Endpoint и S3UseSSL.
	S3PublicURL string

	// --- Admin UI ---

	// Секрет шифрования UI-сессий (AES-256-GCM). Пустой — случайный ключ,
	// сессии не переживают рестарт.
	UISessionSecret string
	// Максимальный размер загружаемого файла (байт)
	MaxUploadSize int64

	// --- Сверка хранилища с реестром ---

	// Интервал фоновой сверки объектов хранилища с URL реестра
	ReconcileInterval time.Duration
	// Grace-период: объекты моложе этого возраста сверкой не рассматриваются
	ReconcileGrace time.Duration
	// Удалять ли найденные объекты-сироты (по умолчанию только логирование)
	ReconcileDelete bool

	// --- topologymetrics ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// PB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("PB_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// PB_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PB_LOG_LEVEL: %w", err)
	}

	// PB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// PB_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("PB_DB_HOST")
	if err != nil {
		return nil, err
	}

	// PB_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("PB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PB_DB_PORT: %w", err)
	}

	// PB_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("PB_DB_NAME")
	if err != nil {
		return nil, err
	}

	// PB_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("PB_DB_USER")
	if err != nil {
		return nil, err
	}

	// PB_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("PB_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// PB_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("PB_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- OTP auth-сервис ---

	// PB_AUTH_URL — обязательный
	cfg.AuthURL, err = getEnvRequired("PB_AUTH_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")

	// --- Файловое хранилище ---

	// PB_S3_ENDPOINT — обязательный
	cfg.S3Endpoint, err = getEnvRequired("PB_S3_ENDPOINT")
	if err != nil {
		return nil, err
	}

	// PB_S3_ACCESS_KEY — обязательный
	cfg.S3AccessKey, err = getEnvRequired("PB_S3_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	// PB_S3_SECRET_KEY — обязательный
	cfg.S3SecretKey, err = getEnvRequired("PB_S3_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	// PB_S3_USE_SSL — TLS к хранилищу (по умолчанию false)
	cfg.S3UseSSL, err = getEnvBool("PB_S3_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("PB_S3_USE_SSL: %w", err)
	}

	// PB_S3_REGION — регион (по умолчанию пусто)
	cfg.S3Region = getEnvDefault("PB_S3_REGION", "")

	// PB_S3_BUCKET — bucket файлов (по умолчанию question-bank-files)
	cfg.S3Bucket = getEnvDefault("PB_S3_BUCKET", "question-bank-files")

	// PB_S3_PUBLIC_URL — базовый публичный URL хранилища (опционально)
	cfg.S3PublicURL = strings.TrimRight(getEnvDefault("PB_S3_PUBLIC_URL", ""), "/")

	// --- Admin UI ---

	// PB_UI_SESSION_SECRET — секрет сессий (опционально)
	cfg.UISessionSecret = getEnvDefault("PB_UI_SESSION_SECRET", "")

	// PB_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 32 MiB)
	maxUpload, err := getEnvInt("PB_MAX_UPLOAD_SIZE", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("PB_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload < 1 {
		return nil, fmt.Errorf("PB_MAX_UPLOAD_SIZE: значение %d должно быть положительным", maxUpload)
	}
	cfg.MaxUploadSize = int64(maxUpload)

	// --- Сверка хранилища с реестром ---

	// PB_RECONCILE_INTERVAL — интервал сверки (по умолчанию 1h)
	cfg.ReconcileInterval, err = getEnvDuration("PB_RECONCILE_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PB_RECONCILE_INTERVAL: %w", err)
	}

	// PB_RECONCILE_GRACE — grace-период (по умолчанию 24h)
	cfg.ReconcileGrace, err = getEnvDuration("PB_RECONCILE_GRACE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PB_RECONCILE_GRACE: %w", err)
	}

	// PB_RECONCILE_DELETE — удалять сирот (по умолчанию false)
	cfg.ReconcileDelete, err = getEnvBool("PB_RECONCILE_DELETE", false)
	if err != nil {
		return nil, fmt.Errorf("PB_RECONCILE_DELETE: %w", err)
	}

	// --- topologymetrics ---

	// PB_DEPHEALTH_GROUP — группа в метриках (по умолчанию paperbank)
	cfg.DephealthGroup = getEnvDefault("PB_DEPHEALTH_GROUP", "paperbank")

	// PB_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("PB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// PB_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для dephealth-лейблов).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
