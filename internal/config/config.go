// Пакет config — загрузка и валидация конфигурации Content Registry
// из переменных окружения (префикс CR_).
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

// Поддерживаемые backend'ы хранилищ.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendBolt     = "bolt"

	BlobBackendNone = "none"
	BlobBackendIPFS = "ipfs"
	BlobBackendFS   = "fs"
)

// Config содержит все параметры конфигурации Content Registry.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Content Store ---

	// Backend хранилища записей: postgres или bolt
	StoreBackend string
	// Параметры PostgreSQL (обязательны при StoreBackend=postgres)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Путь к файлу bbolt (StoreBackend=bolt)
	BoltPath string

	// --- Загрузка и внешние вызовы ---

	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Таймаут одного вызова внешней зависимости (Blob Store, Ethereum)
	ExternalCallTimeout time.Duration

	// --- Кэш записей ---

	CacheMaxSize int
	CacheTTL     time.Duration

	// --- Blob Store ---

	// Backend: none, ipfs, fs
	BlobBackend string
	// URL HTTP API узла IPFS (Kubo)
	IPFSAPIURL string
	// Корневой каталог локального blob-хранилища
	BlobDir string
	// Сжатие zstd для локального blob-хранилища
	BlobCompression bool

	// --- Ethereum реестр ---

	LedgerEnabled bool
	// URL JSON-RPC узла Ethereum
	EthRPCURL string
	// Chain ID сети (например, 11155111 для Sepolia, 31337 для Hardhat)
	EthChainID int64
	// Приватный ключ отправителя транзакций (hex, без 0x)
	EthPrivateKey string
	// Адрес контракта MediaRegistry
	EthContractAddress string
	// Глубина сканирования реестра при перекрёстной проверке
	LedgerScanLimit int
	// Интервал фоновой досинхронизации с реестром (0 — отключена)
	LedgerSyncInterval time.Duration
	// Размер пачки записей за один проход досинхронизации
	LedgerSyncBatch int

	// --- JWT ---

	// URL JWKS endpoint (пусто — аутентификация отключена)
	JWTJWKSURL string
	// Требовать токен для изменяющих операций
	AuthRequired bool
	// Ожидаемый issuer JWT (пусто — не проверяется)
	JWTIssuer string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:cyclop,funlen // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("CR_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("CR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CR_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("CR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("CR_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CR_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("CR_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("CR_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("CR_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CR_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("CR_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CR_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Content Store ---

	cfg.StoreBackend = getEnvDefault("CR_STORE_BACKEND", StoreBackendPostgres)
	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		if err := loadPostgres(cfg); err != nil {
			return nil, err
		}
	case StoreBackendBolt:
		cfg.BoltPath = getEnvDefault("CR_BOLT_PATH", "data/content-registry.db")
	default:
		return nil, fmt.Errorf("CR_STORE_BACKEND: недопустимое значение %q, допустимые: postgres, bolt", cfg.StoreBackend)
	}

	// --- Загрузка и внешние вызовы ---

	cfg.MaxUploadSize, err = getEnvInt64("CR_MAX_UPLOAD_SIZE", 50<<20)
	if err != nil {
		return nil, fmt.Errorf("CR_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize < 1 {
		return nil, fmt.Errorf("CR_MAX_UPLOAD_SIZE: значение должно быть положительным, получено %d", cfg.MaxUploadSize)
	}

	cfg.ExternalCallTimeout, err = getEnvDuration("CR_EXTERNAL_CALL_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CR_EXTERNAL_CALL_TIMEOUT: %w", err)
	}
	if cfg.ExternalCallTimeout <= 0 {
		return nil, fmt.Errorf("CR_EXTERNAL_CALL_TIMEOUT: значение должно быть положительным")
	}

	// --- Кэш ---

	cfg.CacheMaxSize, err = getEnvInt("CR_CACHE_MAX_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CR_CACHE_MAX_SIZE: %w", err)
	}
	if cfg.CacheMaxSize < 1 {
		return nil, fmt.Errorf("CR_CACHE_MAX_SIZE: значение %d должно быть не меньше 1", cfg.CacheMaxSize)
	}
	if cfg.CacheTTL, err = getEnvDuration("CR_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("CR_CACHE_TTL: %w", err)
	}

	// --- Blob Store ---

	cfg.BlobBackend = getEnvDefault("CR_BLOB_BACKEND", BlobBackendNone)
	switch cfg.BlobBackend {
	case BlobBackendNone:
	case BlobBackendIPFS:
		cfg.IPFSAPIURL = strings.TrimRight(getEnvDefault("CR_IPFS_API_URL", "http://localhost:5001"), "/")
	case BlobBackendFS:
		cfg.BlobDir = getEnvDefault("CR_BLOB_DIR", "data/blobs")
		if cfg.BlobCompression, err = getEnvBool("CR_BLOB_COMPRESSION", true); err != nil {
			return nil, fmt.Errorf("CR_BLOB_COMPRESSION: %w", err)
		}
	default:
		return nil, fmt.Errorf("CR_BLOB_BACKEND: недопустимое значение %q, допустимые: none, ipfs, fs", cfg.BlobBackend)
	}

	// --- Ethereum реестр ---

	if cfg.LedgerEnabled, err = getEnvBool("CR_LEDGER_ENABLED", false); err != nil {
		return nil, fmt.Errorf("CR_LEDGER_ENABLED: %w", err)
	}
	if cfg.LedgerEnabled {
		if err := loadLedger(cfg); err != nil {
			return nil, err
		}
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("CR_JWT_JWKS_URL", "")
	if cfg.AuthRequired, err = getEnvBool("CR_AUTH_REQUIRED", false); err != nil {
		return nil, fmt.Errorf("CR_AUTH_REQUIRED: %w", err)
	}
	if cfg.AuthRequired && cfg.JWTJWKSURL == "" {
		return nil, fmt.Errorf("CR_AUTH_REQUIRED: требует заданного CR_JWT_JWKS_URL")
	}
	cfg.JWTIssuer = getEnvDefault("CR_JWT_ISSUER", "")
	if cfg.JWKSRefreshInterval, err = getEnvDuration("CR_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("CR_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("CR_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CR_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("CR_DEPHEALTH_GROUP", "content-registry")
	if cfg.DephealthCheckInterval, err = getEnvDuration("CR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// loadPostgres загружает параметры подключения к PostgreSQL.
func loadPostgres(cfg *Config) error {
	var err error

	if cfg.DBHost, err = getEnvRequired("CR_DB_HOST"); err != nil {
		return err
	}
	if cfg.DBPort, err = getEnvInt("CR_DB_PORT", 5432); err != nil {
		return fmt.Errorf("CR_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("CR_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("CR_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("CR_DB_PASSWORD"); err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("CR_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("CR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// loadLedger загружает параметры Ethereum реестра.
// Секреты берутся только из окружения.
func loadLedger(cfg *Config) error {
	var err error

	if cfg.EthRPCURL, err = getEnvRequired("CR_ETH_RPC_URL"); err != nil {
		return err
	}
	chainID, err := getEnvRequired("CR_ETH_CHAIN_ID")
	if err != nil {
		return err
	}
	if cfg.EthChainID, err = strconv.ParseInt(chainID, 10, 64); err != nil || cfg.EthChainID < 1 {
		return fmt.Errorf("CR_ETH_CHAIN_ID: некорректное значение %q", chainID)
	}
	if cfg.EthPrivateKey, err = getEnvRequired("CR_ETH_PRIVATE_KEY"); err != nil {
		return err
	}
	cfg.EthPrivateKey = strings.TrimPrefix(cfg.EthPrivateKey, "0x")
	if cfg.EthContractAddress, err = getEnvRequired("CR_ETH_CONTRACT_ADDRESS"); err != nil {
		return err
	}

	if cfg.LedgerScanLimit, err = getEnvInt("CR_LEDGER_SCAN_LIMIT", 500); err != nil {
		return fmt.Errorf("CR_LEDGER_SCAN_LIMIT: %w", err)
	}
	if cfg.LedgerScanLimit < 1 {
		return fmt.Errorf("CR_LEDGER_SCAN_LIMIT: значение %d должно быть не меньше 1", cfg.LedgerScanLimit)
	}
	if cfg.LedgerSyncInterval, err = getEnvDuration("CR_LEDGER_SYNC_INTERVAL", 0); err != nil {
		return fmt.Errorf("CR_LEDGER_SYNC_INTERVAL: %w", err)
	}
	if cfg.LedgerSyncBatch, err = getEnvInt("CR_LEDGER_SYNC_BATCH", 50); err != nil {
		return fmt.Errorf("CR_LEDGER_SYNC_BATCH: %w", err)
	}
	if cfg.LedgerSyncBatch < 1 || cfg.LedgerSyncBatch > 1000 {
		return fmt.Errorf("CR_LEDGER_SYNC_BATCH: значение %d вне допустимого диапазона 1-1000", cfg.LedgerSyncBatch)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
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

// getEnvInt64 — как getEnvInt, для размеров в байтах.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
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
