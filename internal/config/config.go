// Пакет config — загрузка и валидация конфигурации fotosort
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации fotosort.
type Config struct {
	// Адрес HTTP-сервера (например, ":8097")
	ListenAddr string
	// Путь к директории данных (встроенная БД, экспорт)
	DataDir string
	// DSN PostgreSQL; если задан, используется вместо встроенной БД
	DatabaseDSN string
	// Секрет для подписи join-токенов (HS256)
	JWTSecret string
	// Время жизни join-токена
	JoinTokenTTL time.Duration
	// Базовый URL для формирования join-ссылки
	PublicURL string
	// Количество воркеров сканирования директории
	ScanWorkers int
	// Глубина предзагрузки изображений на remote (сверх текущего)
	PrefetchDepth int
	// Размер LRU-кэша полезных нагрузок изображений
	PayloadCacheSize int
	// TTL записей в кэше полезных нагрузок
	PayloadCacheTTL time.Duration
	// Размер очереди чекпоинтов
	CheckpointQueue int
	// API-ключ Gemini для описаний нерендерируемых форматов (опционально)
	GeminiAPIKey string
	// Модель Gemini
	GeminiModel string
	// Глобальное разрешение на физическое удаление файлов
	AllowDelete bool
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения (с учётом .env),
// валидирует обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	// .env подхватывается при наличии, ошибки игнорируются
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// FS_LISTEN_ADDR — адрес HTTP-сервера (по умолчанию ":8097")
	cfg.ListenAddr = getEnvDefault("FS_LISTEN_ADDR", ":8097")

	// FS_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("FS_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// FS_DB_DSN — DSN PostgreSQL (опционально; пусто = встроенная БД badger)
	cfg.DatabaseDSN = getEnvDefault("FS_DB_DSN", "")

	// FS_JWT_SECRET — обязательный
	cfg.JWTSecret, err = getEnvRequired("FS_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 16 {
		return nil, fmt.Errorf("FS_JWT_SECRET: длина секрета должна быть не менее 16 символов")
	}

	// FS_JOIN_TOKEN_TTL — время жизни join-токена (по умолчанию 24h)
	cfg.JoinTokenTTL, err = getEnvDuration("FS_JOIN_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FS_JOIN_TOKEN_TTL: %w", err)
	}

	// FS_PUBLIC_URL — базовый URL join-ссылки (по умолчанию http://localhost:8097)
	cfg.PublicURL = strings.TrimRight(getEnvDefault("FS_PUBLIC_URL", "http://localhost:8097"), "/")

	// FS_SCAN_WORKERS — количество воркеров сканирования (по умолчанию 8)
	cfg.ScanWorkers, err = getEnvInt("FS_SCAN_WORKERS", 8)
	if err != nil {
		return nil, fmt.Errorf("FS_SCAN_WORKERS: %w", err)
	}
	if cfg.ScanWorkers < 1 {
		return nil, fmt.Errorf("FS_SCAN_WORKERS: значение должно быть положительным, получено %d", cfg.ScanWorkers)
	}

	// FS_PREFETCH_DEPTH — глубина предзагрузки (по умолчанию 2)
	cfg.PrefetchDepth, err = getEnvInt("FS_PREFETCH_DEPTH", 2)
	if err != nil {
		return nil, fmt.Errorf("FS_PREFETCH_DEPTH: %w", err)
	}
	if cfg.PrefetchDepth < 0 {
		return nil, fmt.Errorf("FS_PREFETCH_DEPTH: значение не может быть отрицательным, получено %d", cfg.PrefetchDepth)
	}

	// FS_PAYLOAD_CACHE_SIZE — размер кэша полезных нагрузок (по умолчанию 64)
	cfg.PayloadCacheSize, err = getEnvInt("FS_PAYLOAD_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("FS_PAYLOAD_CACHE_SIZE: %w", err)
	}
	if cfg.PayloadCacheSize < 1 {
		return nil, fmt.Errorf("FS_PAYLOAD_CACHE_SIZE: значение должно быть положительным, получено %d", cfg.PayloadCacheSize)
	}

	// FS_PAYLOAD_CACHE_TTL — TTL кэша полезных нагрузок (по умолчанию 10m)
	cfg.PayloadCacheTTL, err = getEnvDuration("FS_PAYLOAD_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FS_PAYLOAD_CACHE_TTL: %w", err)
	}

	// FS_CHECKPOINT_QUEUE — размер очереди чекпоинтов (по умолчанию 256)
	cfg.CheckpointQueue, err = getEnvInt("FS_CHECKPOINT_QUEUE", 256)
	if err != nil {
		return nil, fmt.Errorf("FS_CHECKPOINT_QUEUE: %w", err)
	}
	if cfg.CheckpointQueue < 1 {
		return nil, fmt.Errorf("FS_CHECKPOINT_QUEUE: значение должно быть положительным, получено %d", cfg.CheckpointQueue)
	}

	// FS_GEMINI_API_KEY — ключ Gemini (опционально; пусто = описания отключены)
	cfg.GeminiAPIKey = getEnvDefault("FS_GEMINI_API_KEY", "")

	// FS_GEMINI_MODEL — модель Gemini (по умолчанию gemini-2.0-flash)
	cfg.GeminiModel = getEnvDefault("FS_GEMINI_MODEL", "gemini-2.0-flash")

	// FS_ALLOW_DELETE — глобальное разрешение на удаление (по умолчанию false)
	cfg.AllowDelete, err = getEnvBool("FS_ALLOW_DELETE", false)
	if err != nil {
		return nil, fmt.Errorf("FS_ALLOW_DELETE: %w", err)
	}

	// FS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FS_LOG_LEVEL: %w", err)
	}

	// FS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// FS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 30s).
	// Должен покрывать дренаж очереди чекпоинтов и закрытие peer-соединения.
	cfg.ShutdownTimeout, err = getEnvDuration("FS_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 10m, 24h)", val)
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
